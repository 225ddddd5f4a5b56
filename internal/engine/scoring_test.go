package engine

import (
	"math"
	"testing"
	"time"
)

func TestMultiplier(t *testing.T) {
	tests := []struct {
		count int
		want  float64
	}{
		{0, 1.00},
		{1, 1.00},
		{2, 1.10},
		{3, 1.15},
		{10, 1.50},
		{20, 2.00},
		{100, 2.00},
	}
	for _, tt := range tests {
		if got := Multiplier(tt.count); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Multiplier(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestMultiplierMonotonicUpToCap(t *testing.T) {
	prev := 0.0
	for count := 0; count <= 100; count++ {
		m := Multiplier(count)
		if m < prev {
			t.Fatalf("multiplier decreased at count %d: %v -> %v", count, prev, m)
		}
		if m > 2.00 {
			t.Fatalf("multiplier exceeded cap at count %d: %v", count, m)
		}
		prev = m
	}
}

func TestScoreAnswerStreak(t *testing.T) {
	var cs ComboState
	wantGains := []int{100, 110, 115, 120}

	for i, want := range wantGains {
		var gain int
		gain, cs = ScoreAnswer(cs, true, 2*time.Second)
		if gain != want {
			t.Fatalf("answer %d: gain = %d, want %d", i+1, gain, want)
		}
		if cs.Count != i+1 {
			t.Fatalf("answer %d: count = %d, want %d", i+1, cs.Count, i+1)
		}
		if wantActive := i+1 >= 2; cs.Active != wantActive {
			t.Fatalf("answer %d: active = %v, want %v", i+1, cs.Active, wantActive)
		}
	}
}

func TestScoreAnswerGapRestartsStreak(t *testing.T) {
	cs := ComboState{Count: 5, Active: true}

	gain, next := ScoreAnswer(cs, true, ComboContinueWindow+time.Second)
	if gain != 100 {
		t.Errorf("gain = %d, want 100", gain)
	}
	if next.Count != 1 || next.Active {
		t.Errorf("next = %+v, want count 1 inactive", next)
	}
}

func TestScoreAnswerWrong(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  int
	}{
		{"no streak", 0, -25},
		{"streak of 2", 2, -28},   // 25 * 1.10
		{"streak of 10", 10, -38}, // 25 * 1.50
		{"penalty capped", 30, -38},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, next := ScoreAnswer(ComboState{Count: tt.count, Active: tt.count >= 2}, false, time.Second)
			if delta != tt.want {
				t.Errorf("delta = %d, want %d", delta, tt.want)
			}
			if next.Count != 0 || next.Active {
				t.Errorf("streak not cleared: %+v", next)
			}
		})
	}
}

func TestComboWindow(t *testing.T) {
	if got := comboWindow(ComboState{Count: 1}); got != ComboWindowIdle {
		t.Errorf("inactive window = %v, want %v", got, ComboWindowIdle)
	}
	if got := comboWindow(ComboState{Count: 3, Active: true}); got != ComboWindowActive {
		t.Errorf("active window = %v, want %v", got, ComboWindowActive)
	}
}
