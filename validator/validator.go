// Package validator implements the training-health rule set: each
// cycle's metrics are smoothed with an EMA and checked against fixed
// thresholds, producing aggregated, rate-limited diagnostics issues
// that flow out through a diag.Sink rather than a package-level
// logger.
package validator

import (
	"fmt"
	"math"
	"time"

	"github.com/AnthonyKot/chess-rl-sub010/diag"
	"github.com/AnthonyKot/chess-rl-sub010/metrics"
	"github.com/AnthonyKot/chess-rl-sub010/utils/floatutils"
)

const emaAlpha = 0.2

// aggregate tracks one distinct issue message's repeat count and
// rate-limiting state.
type aggregate struct {
	issue     diag.Issue
	count     int
	firstSeen time.Time
	lastSeen  time.Time
	lastSent  time.Time
}

// Validator smooths incoming CycleMetrics with an EMA and evaluates
// the fixed rule set from each update, aggregating and rate-limiting
// identical messages before they reach the Sink.
type Validator struct {
	sink diag.Sink
	now  func() time.Time

	smoothedGradNorm float64
	smoothedEntropy  float64
	smoothedLoss     float64
	havePrevLoss     bool
	prevSmoothedLoss float64
	initialized      bool

	winRateWindow []float64
	trendWindow   int

	aggregates     map[string]*aggregate
	rateLimit      time.Duration
}

// New constructs a Validator. trendWindow configures the window used
// by the stagnation/declining progress rule (should match the
// metrics.Tracker's configured window). now defaults to time.Now.
func New(sink diag.Sink, trendWindow int) *Validator {
	if sink == nil {
		sink = diag.Discard
	}
	if trendWindow <= 0 {
		trendWindow = 10
	}
	return &Validator{
		sink:        sink,
		now:         time.Now,
		trendWindow: trendWindow,
		aggregates:  make(map[string]*aggregate),
		rateLimit:   5 * time.Second,
	}
}

// ValidateCycle smooths m's scalar signals, evaluates every rule, and
// reports triggered issues (aggregated and rate-limited) through the
// Sink. It also returns the raw list of issues produced this call
// (pre-rate-limit), for callers that want to inspect what would have
// fired (e.g. tests).
func (v *Validator) ValidateCycle(m metrics.CycleMetrics, trend metrics.TrendData) []diag.Issue {
	var issues []diag.Issue

	if math.IsNaN(m.Loss) || math.IsInf(m.Loss, 0) || math.IsNaN(m.GradientNorm) || math.IsInf(m.GradientNorm, 0) {
		issues = append(issues, diag.Issue{
			Kind: "NumericalInstability", Severity: diag.Critical,
			Message: "loss or gradientNorm is NaN/Inf",
		})
	} else {
		v.smooth(m)
	}

	if v.initialized {
		switch {
		case v.smoothedGradNorm > 10:
			issues = append(issues, diag.Issue{Kind: "ExplodingGradient", Severity: diag.High,
				Value: v.smoothedGradNorm, Message: "smoothed gradient norm exceeds 10"})
		case v.smoothedGradNorm > 5:
			issues = append(issues, diag.Issue{Kind: "ExplodingGradient", Severity: diag.Medium,
				Value: v.smoothedGradNorm, Message: "smoothed gradient norm exceeds 5"})
		}

		if v.smoothedGradNorm < 1e-6 {
			issues = append(issues, diag.Issue{Kind: "VanishingGradient", Severity: diag.Medium,
				Value: v.smoothedGradNorm, Message: "smoothed gradient norm below 1e-6"})
		}

		switch {
		case v.smoothedEntropy < 0.1:
			issues = append(issues, diag.Issue{Kind: "PolicyCollapse", Severity: diag.High,
				Value: v.smoothedEntropy, Message: "smoothed entropy below 0.1"})
		case v.smoothedEntropy < 0.5:
			issues = append(issues, diag.Issue{Kind: "PolicyCollapse", Severity: diag.Medium,
				Value: v.smoothedEntropy, Message: "smoothed entropy below 0.5"})
		}

		if v.havePrevLoss && v.smoothedLoss-v.prevSmoothedLoss > 5.0 {
			issues = append(issues, diag.Issue{Kind: "LossExplosion", Severity: diag.High,
				Value: v.smoothedLoss - v.prevSmoothedLoss, Message: "smoothed loss increased by more than 5.0 cycle-over-cycle"})
		}
	}

	switch {
	case m.AvgPly < 10:
		issues = append(issues, diag.Issue{Kind: "GamesTooShort", Severity: diag.Medium,
			Value: m.AvgPly, Message: "average ply count below 10"})
	case m.AvgPly > 150:
		issues = append(issues, diag.Issue{Kind: "GamesTooLong", Severity: diag.Medium,
			Value: m.AvgPly, Message: "average ply count above 150"})
	}

	if m.DrawRate > 0.7 {
		issues = append(issues, diag.Issue{Kind: "HighDrawRate", Severity: diag.Medium,
			Value: m.DrawRate, Message: "draw rate exceeds 0.7"})
	}

	if m.StepLimitRate > 0.5 {
		issues = append(issues, diag.Issue{Kind: "HighStepLimitRate", Severity: diag.Medium,
			Value: m.StepLimitRate, Message: "step-limit termination rate exceeds 0.5"})
	}

	if m.IllegalActionCount > 0 {
		issues = append(issues, diag.Issue{Kind: "IllegalActionObserved", Severity: diag.High,
			Value: float64(m.IllegalActionCount), Message: "masked policy observed a raw argmax outside the legal set"})
	}

	if m.TotalActions >= 500 {
		diversity := m.ActionDiversity
		if m.TotalActions > 0 {
			diversity = float64(m.UniqueActions) / float64(m.TotalActions)
		}
		if diversity < 0.1 {
			issues = append(issues, diag.Issue{Kind: "LowActionDiversity", Severity: diag.High,
				Value: diversity, Message: "unique/total action ratio below 0.1 over >=500 actions"})
		}
	}

	v.winRateWindow = append(v.winRateWindow, m.WinRate)
	if len(v.winRateWindow) > v.trendWindow {
		v.winRateWindow = v.winRateWindow[len(v.winRateWindow)-v.trendWindow:]
	}
	if stability := v.stability(); trend.WinRate.Magnitude < 0.001 && stability > 0.8 {
		issues = append(issues, diag.Issue{Kind: "Stagnation", Severity: diag.Medium,
			Value: stability, Message: "win-rate trend stagnant over the trend window"})
	} else if trend.WinRate.Delta < -0.01 {
		issues = append(issues, diag.Issue{Kind: "DecliningProgress", Severity: diag.Medium,
			Value: trend.WinRate.Delta, Message: "win-rate trend declining"})
	}

	v.report(issues)
	return issues
}

// stability is the coefficient-of-variation-based steadiness measure
// used by the stagnation rule: 1 - stddev/|mean| over the tracked
// win-rate window, clamped to [0,1]. A low coefficient of variation
// (a flat, low-noise recent history) reads as high stability.
func (v *Validator) stability() float64 {
	n := len(v.winRateWindow)
	if n < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range v.winRateWindow {
		sum += x
	}
	mean := sum / float64(n)
	varSum := 0.0
	for _, x := range v.winRateWindow {
		d := x - mean
		varSum += d * d
	}
	stddev := math.Sqrt(varSum / float64(n))
	if mean == 0 {
		if stddev == 0 {
			return 1
		}
		return 0
	}
	cv := stddev / math.Abs(mean)
	return floatutils.ClipUnit(1 - cv)
}

func (v *Validator) smooth(m metrics.CycleMetrics) {
	if !v.initialized {
		v.smoothedGradNorm = m.GradientNorm
		v.smoothedEntropy = m.Entropy
		v.smoothedLoss = m.Loss
		v.initialized = true
		return
	}
	v.smoothedGradNorm = emaAlpha*m.GradientNorm + (1-emaAlpha)*v.smoothedGradNorm
	v.smoothedEntropy = emaAlpha*m.Entropy + (1-emaAlpha)*v.smoothedEntropy

	v.prevSmoothedLoss = v.smoothedLoss
	v.havePrevLoss = true
	v.smoothedLoss = emaAlpha*m.Loss + (1-emaAlpha)*v.smoothedLoss
}

// report aggregates issues by (Kind, Message) and forwards each
// distinct message to the Sink at most once per rateLimit window,
// with Count reflecting the total number of occurrences seen so far.
func (v *Validator) report(issues []diag.Issue) {
	now := v.now()
	for _, issue := range issues {
		key := fmt.Sprintf("%s|%s", issue.Kind, issue.Message)
		agg, ok := v.aggregates[key]
		if !ok {
			agg = &aggregate{issue: issue, firstSeen: now}
			v.aggregates[key] = agg
		}
		agg.count++
		agg.lastSeen = now
		agg.issue = issue

		if agg.lastSent.IsZero() || now.Sub(agg.lastSent) >= v.rateLimit {
			out := agg.issue
			out.Count = agg.count
			v.sink.Issue(out)
			agg.lastSent = now
		}
	}
}
