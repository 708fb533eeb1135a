package components

import "testing"

func TestStageCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
		want bool
	}{
		{"growing to differentiating", StageGrowing, StageDifferentiating, true},
		{"growing to mature skips differentiation", StageGrowing, StageMature, false},
		{"growing to trichome tip skips differentiation", StageGrowing, StageTrichomeTip, false},
		{"differentiating to mature", StageDifferentiating, StageMature, true},
		{"differentiating to trichome tip", StageDifferentiating, StageTrichomeTip, true},
		{"differentiating back to growing", StageDifferentiating, StageGrowing, false},
		{"mature is terminal", StageMature, StageTrichomeTip, false},
		{"trichome tip is terminal", StageTrichomeTip, StageMature, false},
		{"mature cannot revert", StageMature, StageGrowing, false},
		{"no self transition", StageGrowing, StageGrowing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%v -> %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStageTerminal(t *testing.T) {
	for _, s := range []Stage{StageGrowing, StageDifferentiating} {
		if s.Terminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
	for _, s := range []Stage{StageMature, StageTrichomeTip} {
		if !s.Terminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
}

func TestStageTextRoundTrip(t *testing.T) {
	for _, s := range []Stage{StageGrowing, StageDifferentiating, StageMature, StageTrichomeTip} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", s, err)
		}
		var back Stage
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != s {
			t.Errorf("round trip %v -> %q -> %v", s, text, back)
		}
	}

	var s Stage
	if err := s.UnmarshalText([]byte("sporulating")); err == nil {
		t.Error("expected error for unknown stage name")
	}
}
