// File: tracker/reporter.go
// Author: momentics <momentics@gmail.com>
//
// Shutdown-safe leak reporter. Report is idempotent in Automatic mode
// so deferred and explicit calls cannot double-print.

package tracker

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// ReportMode selects when the reporter emits its report.
type ReportMode int32

const (
	// Automatic reports once, on the first Report call.
	Automatic ReportMode = iota
	// Manual reports on every Report call.
	Manual
	// Disabled suppresses reporting entirely.
	Disabled
)

// Reporter wraps a Tracker with a shutdown-safe reporting policy.
type Reporter struct {
	tracker *Tracker
	mode    atomic.Int32
	out     io.Writer
	once    sync.Once
}

// NewReporter creates a reporter writing to out; a nil out means stderr.
func NewReporter(t *Tracker, mode ReportMode, out io.Writer) *Reporter {
	if out == nil {
		out = os.Stderr
	}
	r := &Reporter{tracker: t, out: out}
	r.mode.Store(int32(mode))
	return r
}

// SetMode changes the reporting policy.
func (r *Reporter) SetMode(mode ReportMode) {
	r.mode.Store(int32(mode))
}

// Report emits the leak report according to the current mode.
func (r *Reporter) Report() {
	switch ReportMode(r.mode.Load()) {
	case Disabled:
	case Manual:
		r.tracker.ReportLeaks(r.out)
	default:
		r.once.Do(func() { r.tracker.ReportLeaks(r.out) })
	}
}
