// Package diag defines the diagnostics sink the training core reports
// through. Rather than a global/mutable logger singleton, every
// component that needs to report something is handed a Sink
// explicitly at construction. Rate-limiting and aggregation of
// validation messages live in the validator package, not here: a Sink
// is a dumb, side-effecting callback surface.
package diag

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

// Severity classifies a ValidationIssue or log line.
type Severity int

// Severity values, ascending.
const (
	Low Severity = iota
	Medium
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Issue is a single, human-readable diagnostic event. The validator
// aggregates and rate-limits its issues before they reach a Sink; the
// trainer and checkpoint manager report theirs to the Sink directly.
type Issue struct {
	Kind     string
	Severity Severity
	Value    float64
	Message  string
	Count    int
}

// Sink receives diagnostic events from every component of the
// training core. Implementations must be safe for concurrent use: the
// Trainer, SelfPlayDriver workers, and CheckpointManager may all
// report through the same Sink.
type Sink interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Issue(Issue)
}

// charmSink is the default Sink, backed by charmbracelet/log.
type charmSink struct {
	logger *log.Logger
}

// NewCharmSink returns a Sink that writes structured, leveled log
// lines to w via charmbracelet/log.
func NewCharmSink(w *os.File) Sink {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})
	return &charmSink{logger: logger}
}

func (s *charmSink) Infof(format string, args ...any) {
	s.logger.Infof(format, args...)
}

func (s *charmSink) Warnf(format string, args ...any) {
	s.logger.Warnf(format, args...)
}

func (s *charmSink) Errorf(format string, args ...any) {
	s.logger.Errorf(format, args...)
}

func (s *charmSink) Issue(issue Issue) {
	fields := []any{
		"kind", issue.Kind,
		"value", issue.Value,
		"count", issue.Count,
	}
	switch issue.Severity {
	case Critical, High:
		s.logger.With(fields...).Error(issue.Message)
	case Medium:
		s.logger.With(fields...).Warn(issue.Message)
	default:
		s.logger.With(fields...).Info(issue.Message)
	}
}

// Discard is a Sink that drops everything; useful in tests that don't
// care about diagnostic output.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Infof(string, ...any) {}
func (discardSink) Warnf(string, ...any) {}
func (discardSink) Errorf(string, ...any) {}
func (discardSink) Issue(Issue)           {}
