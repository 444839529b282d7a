// Package model defines the data structures used throughout the application.
package model

// Exit codes the service assigns when there is no process exit status to relay.
const (
	// CodeSpawnFailure is reported when the external program could not be
	// started at all (binary missing from PATH, workspace missing, daemon down).
	CodeSpawnFailure = -1
	// CodeIOFailure is reported for failed filesystem actions.
	CodeIOFailure = 1
	// CodeRecreateFailure is reported when reset removed the workspace but
	// could not create it again.
	CodeRecreateFailure = 2
	// CodeTimeout mirrors the exit status of coreutils timeout(1).
	CodeTimeout = 124
)

// ActionResult is the only response body an action route ever sends.
//
// The HTTP status is always 200; Code carries success (0) or failure.
//
//	{"code":0,"stdout":"Success! Compiled 1 module.\n","stderr":""}
type ActionResult struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// OK reports whether the action succeeded.
func (r ActionResult) OK() bool {
	return r.Code == 0
}

// Outcome is the tagged form of an action's result.
//
// WHY A SEALED INTERFACE?
// The unexported outcome() method means only this package can add variants, so
// the type switch in Result is exhaustive: a new variant that isn't mapped
// falls through to the panic and shows up in the first test that produces it.
type Outcome interface {
	outcome()
	// Kind is a short, stable label used for metrics and history.
	Kind() string
}

// Ok is a completed action with a zero exit status.
type Ok struct {
	Stdout string
	Stderr string
}

// ProcessFailure is a subprocess that exited non-zero or could not be started.
type ProcessFailure struct {
	Code   int
	Stdout string
	Stderr string
}

// Timeout is a subprocess killed because its deadline passed.
type Timeout struct {
	Stdout string
	Stderr string
}

// IoFailure is a filesystem action that failed.
type IoFailure struct {
	// Code defaults to CodeIOFailure when zero.
	Code        int
	Description string
}

func (Ok) outcome()             {}
func (ProcessFailure) outcome() {}
func (Timeout) outcome()        {}
func (IoFailure) outcome()      {}

func (Ok) Kind() string             { return "ok" }
func (ProcessFailure) Kind() string { return "process_failure" }
func (Timeout) Kind() string        { return "timeout" }
func (IoFailure) Kind() string      { return "io_failure" }

// Result flattens an Outcome into the wire envelope.
func Result(o Outcome) ActionResult {
	switch o := o.(type) {
	case Ok:
		return ActionResult{Code: 0, Stdout: o.Stdout, Stderr: o.Stderr}
	case ProcessFailure:
		return ActionResult{Code: o.Code, Stdout: o.Stdout, Stderr: o.Stderr}
	case Timeout:
		return ActionResult{Code: CodeTimeout, Stdout: o.Stdout, Stderr: o.Stderr + "\nExecution timed out.\n"}
	case IoFailure:
		code := o.Code
		if code == 0 {
			code = CodeIOFailure
		}
		return ActionResult{Code: code, Stdout: "", Stderr: o.Description}
	default:
		panic("model: unhandled outcome type")
	}
}
