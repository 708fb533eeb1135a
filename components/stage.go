package components

import "fmt"

// Stage enumerates the developmental states of a cell agent.
// Transitions move strictly forward: Growing -> Differentiating ->
// (Mature | TrichomeTip). The two fates are terminal.
type Stage uint8

const (
	StageGrowing Stage = iota
	StageDifferentiating
	StageMature
	StageTrichomeTip
)

// StageNames returns the display names for all stages.
// The order matches the Stage constants.
func StageNames() []string {
	return []string{"growing", "differentiating", "mature", "trichome_tip"}
}

// String returns the display name for a Stage.
func (s Stage) String() string {
	names := StageNames()
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Terminal reports whether s is a fate no transition can leave.
func (s Stage) Terminal() bool {
	return s == StageMature || s == StageTrichomeTip
}

// CanTransition reports whether the state machine permits moving from
// s to next in a single transition.
func (s Stage) CanTransition(next Stage) bool {
	switch s {
	case StageGrowing:
		return next == StageDifferentiating
	case StageDifferentiating:
		return next == StageMature || next == StageTrichomeTip
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler so snapshots and CSV
// rows carry stage names instead of raw numbers.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	for i, name := range StageNames() {
		if name == string(text) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}
