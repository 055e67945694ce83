package core

import "testing"

func TestReductionPercent(t *testing.T) {
	tests := []struct {
		orig, new int64
		want      int
	}{
		{1000, 250, 75},
		{1000, 1000, 0},
		{0, 0, 0},
		{0, 500, 0},
		{-5, 1, 0},
		{200, 1, 100},    // 99.5 rounds up
		{200, 3, 99},     // 98.5 rounds up
		{1000, 996, 0},
		{1000, 995, 1},   // 0.5 rounds up
		{1000, 1005, 0},  // -0.5 rounds up
		{1000, 1006, -1},
		{1000, 1500, -50},
		{3, 1, 67},
	}
	for _, tt := range tests {
		if got := ReductionPercent(tt.orig, tt.new); got != tt.want {
			t.Errorf("ReductionPercent(%d, %d) = %d, want %d", tt.orig, tt.new, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]*RecodeResult{
		{OriginalSize: 1000, NewSize: 300},
		nil,
		{OriginalSize: 3000, NewSize: 700},
	})
	want := Summary{Count: 2, OriginalTotal: 4000, NewTotal: 1000, ReductionPercent: 75}
	if s != want {
		t.Errorf("Summarize = %+v, want %+v", s, want)
	}
	if z := Summarize(nil); z != (Summary{}) {
		t.Errorf("Summarize(nil) = %+v", z)
	}
}

func TestRecodeResultReduction(t *testing.T) {
	r := &RecodeResult{OriginalSize: 400, NewSize: 100}
	if got := r.Reduction(); got != 75 {
		t.Errorf("Reduction = %d", got)
	}
}
