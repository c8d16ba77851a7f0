package search

import "fmt"

// StartError reports a scan start that failed fast: no bound process, an
// empty range selection, a refine with no prior matches, or a start while a
// pass is already running.
type StartError struct {
	Reason string
}

func (e *StartError) Error() string {
	return "cannot start scan: " + e.Reason
}

// EngineError carries the opaque error code surfaced by the scan engine.
// The code is for display; it is never interpreted or retried on.
type EngineError struct {
	Code int
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("scan engine error (code %d)", e.Code)
}

// Engine error codes. Opaque to everything above the engine.
const (
	engineErrProcessGone      = 1
	engineErrNoReadableMemory = 2
)
