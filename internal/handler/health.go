package handler

import "net/http"

// HealthInfo describes what the server runs actions with.
type HealthInfo struct {
	Status    string `json:"status"`
	Executor  string `json:"executor"`
	Compiler  string `json:"compiler"`
	Runtime   string `json:"runtime"`
	Workspace string `json:"workspace"`
}

// HandleHealth reports liveness plus the configured toolchain.
//
// HTTP: GET /health
func HandleHealth(info HealthInfo) http.HandlerFunc {
	info.Status = "ok"
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, info)
	}
}
