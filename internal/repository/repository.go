// Package repository declares the storage interfaces the service layer depends on.
package repository

import (
	"context"

	"github.com/sakif/workbench/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ActionRepository stores the history of executed actions.
type ActionRepository interface {
	Create(ctx context.Context, record *model.ActionRecord) error
	GetByID(ctx context.Context, id string) (*model.ActionRecord, error)
	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]model.ActionRecord, error)
}
