package focus

import (
	"github.com/pkg/errors"
)

var (
	// errors
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyRunning    = errors.New("a run is already live for this participant")
	ErrNotRunning        = errors.New("no live run for this participant")
	ErrClassifierFailure = errors.New("frame classification failed")
	ErrReportNotFound    = errors.New("report not found")
	ErrNoLiveEvents      = errors.New("live events are not enabled")
)

// ReportNotSavedError is returned by Stop when the run has ended but its report could not be persisted.
// The report is kept and written again on the next Stop for the same participant.
type ReportNotSavedError struct {
	Report Report
	Err    error
}

func (e *ReportNotSavedError) Error() string {
	return "report not saved: " + e.Err.Error()
}

func (e *ReportNotSavedError) Unwrap() error { return e.Err }

func (e *ReportNotSavedError) Retryable() bool { return true }
