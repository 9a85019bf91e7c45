// Package report carries diagnostics out of the scanner, differ and
// materializer without any package-level logger.
package report

import (
	"go.uber.org/zap"

	"snapdiff/internal/progress"
)

// Reporter receives diagnostics from long-running operations.
type Reporter interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})

	// HashFailed is called once for every file whose content could not be fingerprinted.
	HashFailed(path string, err error)

	// Progress is called periodically while hashing jobs are outstanding.
	Progress(scheduled, completed int64)
}

type nopReporter struct{}

func (nopReporter) Debugf(string, ...interface{}) {}
func (nopReporter) Infof(string, ...interface{})  {}
func (nopReporter) Warnf(string, ...interface{})  {}
func (nopReporter) HashFailed(string, error)      {}
func (nopReporter) Progress(int64, int64)         {}

// Nop returns a Reporter that discards everything.
func Nop() Reporter { return nopReporter{} }

// OrNop returns r, or Nop() when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop()
	}
	return r
}

type loggerReporter struct {
	log *zap.SugaredLogger
	bar *progress.Bar
}

// NewLogger returns a Reporter writing to log. Progress goes to bar when it
// is non-nil, and to debug logs otherwise.
func NewLogger(log *zap.SugaredLogger, bar *progress.Bar) Reporter {
	return &loggerReporter{log: log, bar: bar}
}

func (r *loggerReporter) Debugf(format string, args ...interface{}) {
	r.log.Debugf(format, args...)
}

func (r *loggerReporter) Infof(format string, args ...interface{}) {
	r.log.Infof(format, args...)
}

func (r *loggerReporter) Warnf(format string, args ...interface{}) {
	r.log.Warnf(format, args...)
}

func (r *loggerReporter) HashFailed(path string, err error) {
	r.log.Warnw("unable to fingerprint file, falling back to modification time", "path", path, "error", err)
}

func (r *loggerReporter) Progress(scheduled, completed int64) {
	if r.bar != nil {
		r.bar.Update(completed, scheduled)
		return
	}
	r.log.Debugf("hashing progress: %d/%d", completed, scheduled)
}
