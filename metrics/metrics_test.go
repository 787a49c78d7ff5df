package metrics

import (
	"testing"
	"time"
)

func TestNewTrackerRejectsNonPositiveWindow(t *testing.T) {
	if _, err := NewTracker(0); err == nil {
		t.Fatal("NewTracker(0) should fail")
	}
	if _, err := NewTracker(-1); err == nil {
		t.Fatal("NewTracker(-1) should fail")
	}
}

func TestTrendDirectionImproving(t *testing.T) {
	tr, err := NewTracker(3)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	// Three flat-low cycles, then three improving cycles: WinRate trend
	// over the most recent window should read UP.
	for i := 0; i < 3; i++ {
		tr.Update(CycleMetrics{Cycle: i, WinRate: 0.2})
	}
	var td TrendData
	for i := 3; i < 6; i++ {
		td = tr.Update(CycleMetrics{Cycle: i, WinRate: 0.8})
	}

	if td.WinRate.Direction != Up {
		t.Fatalf("WinRate.Direction = %v, want Up", td.WinRate.Direction)
	}
	if td.WinRate.Delta <= 0 {
		t.Fatalf("WinRate.Delta = %v, want > 0", td.WinRate.Delta)
	}
}

func TestTrendLossIsLowerIsBetter(t *testing.T) {
	tr, err := NewTracker(3)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	for i := 0; i < 3; i++ {
		tr.Update(CycleMetrics{Cycle: i, Loss: 1.0})
	}
	var td TrendData
	for i := 3; i < 6; i++ {
		td = tr.Update(CycleMetrics{Cycle: i, Loss: 0.1})
	}
	// Loss dropped from 1.0 to 0.1: an improvement, so Direction should
	// be Up (the Tracker negates loss delta before classifying).
	if td.Loss.Direction != Up {
		t.Fatalf("Loss.Direction = %v, want Up (loss decreased)", td.Loss.Direction)
	}
}

func TestBestDeltaNilUntilSecondImprovement(t *testing.T) {
	tr, err := NewTracker(2)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	td := tr.Update(CycleMetrics{Cycle: 0, WinRate: 0.5})
	if td.BestDelta != nil {
		t.Fatal("BestDelta should be nil after the first update")
	}
	td = tr.Update(CycleMetrics{Cycle: 1, WinRate: 0.7})
	if td.BestDelta == nil {
		t.Fatal("BestDelta should be set once a second, higher WinRate is observed")
	}
	if *td.BestDelta <= 0 {
		t.Fatalf("BestDelta = %v, want > 0", *td.BestDelta)
	}
}

func TestEstimateETANilBeforeThreeCycles(t *testing.T) {
	tr, err := NewTracker(5)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tr.Update(CycleMetrics{Cycle: 0, CycleDuration: time.Second})
	tr.Update(CycleMetrics{Cycle: 1, CycleDuration: time.Second})
	if eta := tr.EstimateETA(1, 10); eta != nil {
		t.Fatal("EstimateETA should be nil with fewer than 3 cycles of history")
	}
	tr.Update(CycleMetrics{Cycle: 2, CycleDuration: time.Second})
	eta := tr.EstimateETA(2, 10)
	if eta == nil {
		t.Fatal("EstimateETA should be non-nil with 3 cycles of history")
	}
	if *eta != 8*time.Second {
		t.Fatalf("EstimateETA(2, 10) = %v, want 8s (8 remaining cycles * 1s avg)", *eta)
	}
}
