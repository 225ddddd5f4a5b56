package engine

import "errors"

var ErrInvalidSettings = errors.New("invalid settings")

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type Operation string

const (
	OpAddition       Operation = "addition"
	OpSubtraction    Operation = "subtraction"
	OpMultiplication Operation = "multiplication"
	OpDivision       Operation = "division"
	OpExponents      Operation = "exponents"
)

// Operations mirrors the client-side settings toggles field for field.
type Operations struct {
	Addition       bool `json:"addition"`
	Subtraction    bool `json:"subtraction"`
	Multiplication bool `json:"multiplication"`
	Division       bool `json:"division"`
	Exponents      bool `json:"exponents"`
}

// Enabled returns the enabled operations in a fixed order.
func (o Operations) Enabled() []Operation {
	var ops []Operation
	if o.Addition {
		ops = append(ops, OpAddition)
	}
	if o.Subtraction {
		ops = append(ops, OpSubtraction)
	}
	if o.Multiplication {
		ops = append(ops, OpMultiplication)
	}
	if o.Division {
		ops = append(ops, OpDivision)
	}
	if o.Exponents {
		ops = append(ops, OpExponents)
	}
	return ops
}

type GameSettings struct {
	Difficulty Difficulty `json:"difficulty"`
	Duration   int        `json:"duration"` // seconds
	Operations Operations `json:"operations"`
}

func DefaultSettings() GameSettings {
	return GameSettings{
		Difficulty: DifficultyEasy,
		Duration:   120,
		Operations: Operations{
			Addition:       true,
			Subtraction:    true,
			Multiplication: true,
			Division:       true,
		},
	}
}

// SettingsPatch is a partial settings update; nil fields are left untouched.
type SettingsPatch struct {
	Difficulty *Difficulty `json:"difficulty,omitempty"`
	Duration   *int        `json:"duration,omitempty"`
	Operations *Operations `json:"operations,omitempty"`
}

// Merge applies a patch and validates the result. The receiver is returned
// unchanged on error.
func (s GameSettings) Merge(p SettingsPatch) (GameSettings, error) {
	next := s
	if p.Difficulty != nil {
		next.Difficulty = *p.Difficulty
	}
	if p.Duration != nil {
		next.Duration = *p.Duration
	}
	if p.Operations != nil {
		next.Operations = *p.Operations
	}
	if err := next.Validate(); err != nil {
		return s, err
	}
	return next, nil
}

func (s GameSettings) Validate() error {
	switch s.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return ErrInvalidSettings
	}
	switch s.Duration {
	case 120, 180, 300:
	default:
		return ErrInvalidSettings
	}
	if len(s.Operations.Enabled()) == 0 {
		return ErrInvalidSettings
	}
	return nil
}
