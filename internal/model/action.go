package model

import "time"

// Action names one of the side effects a request can trigger.
type Action string

const (
	ActionCompile   Action = "compile"
	ActionEval      Action = "eval"
	ActionWriteFile Action = "writeFile"
	ActionReadFile  Action = "readFile"
	ActionReset     Action = "reset"
)

// ActionRecord is one row of action history.
//
// Only metadata is kept: file contents and process output stay in the
// workspace and the response, never in the database.
type ActionRecord struct {
	ID         string    `json:"id"`
	Action     Action    `json:"action"`
	Filename   string    `json:"filename,omitempty"`
	Output     string    `json:"output,omitempty"`
	Outcome    string    `json:"outcome"`
	Code       int       `json:"code"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}
