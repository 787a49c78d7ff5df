// Package checkpoint manages the regular/best/final lifecycle of
// on-disk backend artifacts, generalizing the teacher's
// encode-with-gob-into-a-named-file primitive from a single
// interval-triggered save into three named lifecycle operations with
// a metadata sidecar.
package checkpoint

import (
	"fmt"

	"github.com/AnthonyKot/chess-rl-sub010/backend"
	"github.com/AnthonyKot/chess-rl-sub010/diag"
)

// Metadata is the sidecar descriptor recorded alongside every
// checkpoint artifact.
type Metadata struct {
	BackendID           string
	ParamHash           string
	Cycle               int
	TimestampUTCMillis  int64
	EvalScore           float64
	ConfigFingerprint   string
}

// Manager tracks the regular/best/final checkpoint lifecycle. Naming
// (paths) is the caller's responsibility; Manager only decides when a
// write is required and records metadata.
type Manager struct {
	sink       diag.Sink
	epsPromote float64

	lastRegularPath  string
	lastRegularCycle int
	regularHistory   []Metadata

	bestPath     string
	bestScore    float64
	haveBest     bool
	bestHistory  []Metadata

	finalPath string
	finalMeta *Metadata
}

// NewManager constructs a Manager. epsPromote is the minimum
// improvement over the recorded best score required for PromoteBest
// to accept a new score (default 0, i.e. any strict improvement).
func NewManager(sink diag.Sink, epsPromote float64) *Manager {
	if sink == nil {
		sink = diag.Discard
	}
	return &Manager{sink: sink, epsPromote: epsPromote}
}

// BestScore reports the best recorded evaluation score and whether
// one has been recorded yet.
func (m *Manager) BestScore() (float64, bool) {
	return m.bestScore, m.haveBest
}

// SaveRegular writes b's parameters to path on the cadence the caller
// decides (e.g. every checkpointInterval cycles). A write failure is
// retried once; if it still fails a CRITICAL issue is reported but the
// error is also returned so the Trainer can decide whether to
// continue (per spec, it always does).
func (m *Manager) SaveRegular(b backend.Backend, meta Metadata, path string) error {
	if err := m.writeWithRetry(b, path, "regular"); err != nil {
		return err
	}
	m.lastRegularPath = path
	m.lastRegularCycle = meta.Cycle
	m.regularHistory = append(m.regularHistory, meta)
	return nil
}

// PromoteBest records meta as the new best checkpoint if
// meta.EvalScore > bestScore + epsPromote, deduplicating the on-disk
// write when path is the one this cycle's SaveRegular already wrote.
// PromoteBest is idempotent when the score does not clear the
// threshold: it reports promoted=false and leaves all state
// unchanged.
func (m *Manager) PromoteBest(b backend.Backend, meta Metadata, path string) (promoted bool, err error) {
	if m.haveBest && meta.EvalScore <= m.bestScore+m.epsPromote {
		return false, nil
	}

	if path == m.lastRegularPath && meta.Cycle == m.lastRegularCycle {
		// Already on disk from this cycle's regular save.
	} else if err := m.writeWithRetry(b, path, "best"); err != nil {
		return false, err
	}

	m.bestPath = path
	m.bestScore = meta.EvalScore
	m.haveBest = true
	m.bestHistory = append(m.bestHistory, meta)
	return true, nil
}

// SaveFinal writes the terminal checkpoint, distinct from the regular
// and best artifacts even when its parameters happen to coincide.
func (m *Manager) SaveFinal(b backend.Backend, meta Metadata, path string) error {
	if err := m.writeWithRetry(b, path, "final"); err != nil {
		return err
	}
	m.finalPath = path
	m.finalMeta = &meta
	return nil
}

// LoadBest restores b's parameters from the recorded best checkpoint.
func (m *Manager) LoadBest(b backend.Backend) error {
	if !m.haveBest {
		return fmt.Errorf("checkpoint: no best checkpoint has been recorded")
	}
	return b.Load(m.bestPath)
}

// LoadByPath restores b's parameters from an arbitrary previously
// written checkpoint path.
func (m *Manager) LoadByPath(b backend.Backend, path string) error {
	return b.Load(path)
}

func (m *Manager) writeWithRetry(b backend.Backend, path, kind string) error {
	err := b.Save(path)
	if err == nil {
		return nil
	}
	err = b.Save(path)
	if err == nil {
		return nil
	}
	m.sink.Issue(diag.Issue{
		Kind:     "CheckpointWriteFailure",
		Severity: diag.Critical,
		Message:  fmt.Sprintf("could not write %s checkpoint to %q after retry: %v", kind, path, err),
	})
	return fmt.Errorf("checkpoint: could not write %s checkpoint to %q: %w", kind, path, err)
}
