// Package metrics defines the per-cycle metrics record the training
// core accumulates and the rolling-window Tracker that turns a
// sequence of those records into trend/ETA/best-score diagnostics,
// generalizing the teacher's per-episode accumulate-then-snapshot
// tracker style onto gonum's statistics primitives.
package metrics

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/AnthonyKot/chess-rl-sub010/backend"
)

// CycleMetrics aggregates everything measured over one training
// cycle: self-play outcomes, training statistics, and the two
// diversity/utilization signals the validator watches.
type CycleMetrics struct {
	Cycle int

	Games         int
	WinRate       float64
	DrawRate      float64
	LossRate      float64
	AvgPly        float64
	StepLimitRate float64

	BufferUtilization float64

	BatchesProcessed int
	Loss             float64
	GradientNorm     float64
	Entropy          float64
	QStats           backend.QStats
	Reward           float64

	TotalActions    int
	UniqueActions   int
	ActionDiversity float64

	IllegalActionCount int

	CycleDuration time.Duration

	// Failed marks a cycle in which the self-play driver dropped more
	// than half of its games; the Trainer applies no backend updates
	// for such a cycle, and several scalar fields above are zero.
	Failed bool
}

// Direction classifies a Trend relative to an improvement-is-positive
// convention; for metrics where lower is better (loss), the Tracker
// negates the delta before classifying.
type Direction int

// Direction values.
const (
	Stable Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	default:
		return "STABLE"
	}
}

// Trend summarizes the movement of one scalar across the Tracker's
// rolling window.
type Trend struct {
	Direction Direction
	// Delta is recentAvg - previousAvg (already sign-flipped for
	// lower-is-better metrics), so Delta > 0 always means "improving".
	Delta float64
	// Magnitude is |Delta|.
	Magnitude float64
	// Confidence is |Delta| / sqrt(pooledVariance), clamped to [0,1];
	// 1 when pooledVariance is 0 and Delta != 0. Until two full windows
	// of history exist, the recent and previous windows are each
	// min(W, n/2) cycles long; with fewer than 2 cycles the whole Trend
	// is the zero value.
	Confidence float64
}

// MovingAverages reports the simple mean of each tracked scalar over
// the Tracker's full rolling window (up to 2*W cycles).
type MovingAverages struct {
	Reward        float64
	WinRate       float64
	Loss          float64
	GradientNorm  float64
	CycleDuration time.Duration
}

// TrendData is the per-update output of Tracker.Update.
type TrendData struct {
	Reward       Trend
	WinRate      Trend
	Loss         Trend
	GradientNorm Trend
	Averages     MovingAverages
	// BestDelta is currentBest - previousBest, nil until a second
	// improvement in WinRate has been observed.
	BestDelta *float64
}

// Tracker maintains a rolling window of the last 2*W CycleMetrics and
// derives trend/best-score diagnostics from it, W the configured
// trend window.
type Tracker struct {
	window    int
	epsStable float64
	history   []CycleMetrics

	bestScore        float64
	haveBest         bool
	previousBest     float64
	havePreviousBest bool
}

// NewTracker constructs a Tracker with trend window w (must be > 0).
func NewTracker(w int) (*Tracker, error) {
	if w <= 0 {
		return nil, fmt.Errorf("metrics: trend window must be > 0, got %d", w)
	}
	return &Tracker{window: w, epsStable: 0.001}, nil
}

// HistorySize reports how many cycles of history the Tracker
// currently holds (capped at 2*W).
func (t *Tracker) HistorySize() int {
	return len(t.history)
}

// Update appends m to the rolling window, updates the best-WinRate
// record, and returns the resulting TrendData.
func (t *Tracker) Update(m CycleMetrics) TrendData {
	t.history = append(t.history, m)
	if max := 2 * t.window; len(t.history) > max {
		t.history = t.history[len(t.history)-max:]
	}

	if !t.haveBest || m.WinRate > t.bestScore {
		if t.haveBest {
			t.previousBest = t.bestScore
			t.havePreviousBest = true
		}
		t.bestScore = m.WinRate
		t.haveBest = true
	}

	td := TrendData{
		Reward:       t.trend(func(c CycleMetrics) float64 { return c.Reward }, false),
		WinRate:      t.trend(func(c CycleMetrics) float64 { return c.WinRate }, false),
		Loss:         t.trend(func(c CycleMetrics) float64 { return c.Loss }, true),
		GradientNorm: t.trend(func(c CycleMetrics) float64 { return c.GradientNorm }, false),
		Averages:     t.averages(),
	}
	if t.havePreviousBest {
		d := t.bestScore - t.previousBest
		td.BestDelta = &d
	}
	return td
}

// EstimateETA reports avgCycleDuration * (maxCycles - currentCycle),
// or nil if fewer than 3 cycles of history are available.
func (t *Tracker) EstimateETA(currentCycle, maxCycles int) *time.Duration {
	if len(t.history) < 3 {
		return nil
	}
	remaining := maxCycles - currentCycle
	if remaining < 0 {
		remaining = 0
	}
	avg := t.averages().CycleDuration
	eta := time.Duration(int64(avg) * int64(remaining))
	return &eta
}

func (t *Tracker) trend(sel func(CycleMetrics) float64, lowerIsBetter bool) Trend {
	n := len(t.history)
	if n < 2 {
		return Trend{}
	}

	w := t.window
	if w > n/2 {
		w = n / 2
	}
	if w == 0 {
		return Trend{}
	}

	recent := t.history[n-w:]
	prevStart := n - 2*w
	if prevStart < 0 {
		prevStart = 0
	}
	previous := t.history[prevStart : n-w]
	if len(previous) == 0 {
		return Trend{}
	}

	recentAvg := meanOf(recent, sel)
	previousAvg := meanOf(previous, sel)
	delta := recentAvg - previousAvg
	if lowerIsBetter {
		delta = -delta
	}

	pooledVar := pooledVariance(recent, previous, sel)

	var confidence float64
	switch {
	case pooledVar == 0 && delta != 0:
		confidence = 1
	case pooledVar > 0:
		confidence = math.Abs(delta) / math.Sqrt(pooledVar)
		if confidence > 1 {
			confidence = 1
		}
	}

	direction := Stable
	switch {
	case delta > t.epsStable:
		direction = Up
	case delta < -t.epsStable:
		direction = Down
	}

	return Trend{Direction: direction, Delta: delta, Magnitude: math.Abs(delta), Confidence: confidence}
}

func (t *Tracker) averages() MovingAverages {
	durations := make([]float64, len(t.history))
	for i, c := range t.history {
		durations[i] = float64(c.CycleDuration)
	}
	avgDuration := time.Duration(0)
	if len(durations) > 0 {
		avgDuration = time.Duration(stat.Mean(durations, nil))
	}
	return MovingAverages{
		Reward:        meanOf(t.history, func(c CycleMetrics) float64 { return c.Reward }),
		WinRate:       meanOf(t.history, func(c CycleMetrics) float64 { return c.WinRate }),
		Loss:          meanOf(t.history, func(c CycleMetrics) float64 { return c.Loss }),
		GradientNorm:  meanOf(t.history, func(c CycleMetrics) float64 { return c.GradientNorm }),
		CycleDuration: avgDuration,
	}
}

func meanOf(cycles []CycleMetrics, sel func(CycleMetrics) float64) float64 {
	if len(cycles) == 0 {
		return 0
	}
	xs := make([]float64, len(cycles))
	for i, c := range cycles {
		xs[i] = sel(c)
	}
	return stat.Mean(xs, nil)
}

func pooledVariance(recent, previous []CycleMetrics, sel func(CycleMetrics) float64) float64 {
	if len(recent) < 2 || len(previous) < 2 {
		return 0
	}
	rx := make([]float64, len(recent))
	for i, c := range recent {
		rx[i] = sel(c)
	}
	px := make([]float64, len(previous))
	for i, c := range previous {
		px[i] = sel(c)
	}
	varR := stat.Variance(rx, nil)
	varP := stat.Variance(px, nil)
	nR, nP := float64(len(rx)), float64(len(px))
	denom := nR + nP - 2
	if denom <= 0 {
		return 0
	}
	return (varR*(nR-1) + varP*(nP-1)) / denom
}
