package validator

import (
	"math"
	"testing"
	"time"

	"github.com/AnthonyKot/chess-rl-sub010/diag"
	"github.com/AnthonyKot/chess-rl-sub010/metrics"
)

// recordingSink captures every Issue reported to it, so tests can
// inspect what actually reached the Sink after rate-limiting.
type recordingSink struct {
	issues []diag.Issue
}

func (r *recordingSink) Infof(string, ...any)  {}
func (r *recordingSink) Warnf(string, ...any)  {}
func (r *recordingSink) Errorf(string, ...any) {}
func (r *recordingSink) Issue(i diag.Issue)    { r.issues = append(r.issues, i) }

func TestValidateCycleNaNLossIsCritical(t *testing.T) {
	sink := &recordingSink{}
	v := New(sink, 5)

	issues := v.ValidateCycle(metrics.CycleMetrics{Loss: math.NaN()}, metrics.TrendData{})

	found := false
	for _, i := range issues {
		if i.Kind == "NumericalInstability" && i.Severity == diag.Critical {
			found = true
		}
	}
	if !found {
		t.Fatal("a NaN loss should produce a CRITICAL NumericalInstability issue")
	}
}

func TestValidateCycleNaNLossDoesNotCorruptEMA(t *testing.T) {
	v := New(diag.Discard, 5)

	v.ValidateCycle(metrics.CycleMetrics{Loss: 1.0, GradientNorm: 1.0, Entropy: 1.0}, metrics.TrendData{})
	v.ValidateCycle(metrics.CycleMetrics{Loss: math.NaN(), GradientNorm: 1.0}, metrics.TrendData{})

	if math.IsNaN(v.smoothedLoss) {
		t.Fatal("a NaN-loss cycle should skip the EMA update, not poison it")
	}
}

func TestValidateCycleExplodingGradient(t *testing.T) {
	v := New(diag.Discard, 5)
	// smooth() bootstraps smoothedGradNorm to the raw value and marks
	// the Validator initialized on the very first call, so the rule can
	// already fire on cycle one.
	issues := v.ValidateCycle(metrics.CycleMetrics{GradientNorm: 20, Entropy: 1, Loss: 0}, metrics.TrendData{})

	found := false
	for _, i := range issues {
		if i.Kind == "ExplodingGradient" && i.Severity == diag.High {
			found = true
		}
	}
	if !found {
		t.Fatal("sustained gradient norm above 10 should produce a HIGH ExplodingGradient issue")
	}
}

func TestValidateCycleIllegalActionIsHigh(t *testing.T) {
	v := New(diag.Discard, 5)
	issues := v.ValidateCycle(metrics.CycleMetrics{IllegalActionCount: 1}, metrics.TrendData{})

	found := false
	for _, i := range issues {
		if i.Kind == "IllegalActionObserved" && i.Severity == diag.High {
			found = true
		}
	}
	if !found {
		t.Fatal("a nonzero IllegalActionCount should produce a HIGH IllegalActionObserved issue")
	}
}

func TestReportRateLimitsRepeatedIdenticalIssue(t *testing.T) {
	sink := &recordingSink{}
	v := New(sink, 5)

	now := time.Unix(1000, 0)
	v.now = func() time.Time { return now }

	issue := diag.Issue{Kind: "HighDrawRate", Message: "draw rate exceeds 0.7"}
	v.report([]diag.Issue{issue})
	v.report([]diag.Issue{issue})
	if len(sink.issues) != 1 {
		t.Fatalf("two reports within the rate-limit window produced %d sink deliveries, want 1", len(sink.issues))
	}

	now = now.Add(6 * time.Second)
	v.report([]diag.Issue{issue})
	if len(sink.issues) != 2 {
		t.Fatalf("a report after the rate-limit window elapsed produced %d total deliveries, want 2", len(sink.issues))
	}
	if sink.issues[1].Count != 3 {
		t.Fatalf("Count on the third delivery = %d, want 3 (cumulative occurrences)", sink.issues[1].Count)
	}
}

func TestStabilityRequiresAtLeastTwoSamples(t *testing.T) {
	v := New(diag.Discard, 5)
	if s := v.stability(); s != 0 {
		t.Fatalf("stability() with no history = %v, want 0", s)
	}
}
