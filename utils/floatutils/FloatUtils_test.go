package floatutils

import "testing"

func TestClipBoundsValueToRange(t *testing.T) {
	cases := []struct {
		value, min, max, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-1, 0, 1, 0},
		{2, 0, 1, 1},
		{5, -10, 10, 5},
	}
	for _, c := range cases {
		if got := Clip(c.value, c.min, c.max); got != c.want {
			t.Fatalf("Clip(%v, %v, %v) = %v, want %v", c.value, c.min, c.max, got, c.want)
		}
	}
}

func TestClipUnitBoundsToZeroOne(t *testing.T) {
	if got := ClipUnit(-0.3); got != 0 {
		t.Fatalf("ClipUnit(-0.3) = %v, want 0", got)
	}
	if got := ClipUnit(1.2); got != 1 {
		t.Fatalf("ClipUnit(1.2) = %v, want 1", got)
	}
	if got := ClipUnit(0.42); got != 0.42 {
		t.Fatalf("ClipUnit(0.42) = %v, want 0.42", got)
	}
}
