package engine

import (
	"fmt"
	"math/rand"
)

type Question struct {
	ID        int       `json:"id"`
	Equation  string    `json:"equation"`
	Answer    int       `json:"answer"`
	Operation Operation `json:"operation"`
}

// QuestionBatchSize is how many questions are generated at a time. A fresh
// batch is appended whenever any player runs off the end of the pool.
const QuestionBatchSize = 40

// Per-difficulty draw weights. Exponents hold a flat 10% whenever enabled;
// the draw runs over the enabled subset only, so disabling operations
// renormalizes the rest implicitly.
var opWeights = map[Difficulty]map[Operation]int{
	DifficultyEasy:   {OpAddition: 35, OpSubtraction: 30, OpMultiplication: 15, OpDivision: 10, OpExponents: 10},
	DifficultyMedium: {OpAddition: 25, OpSubtraction: 25, OpMultiplication: 20, OpDivision: 20, OpExponents: 10},
	DifficultyHard:   {OpAddition: 15, OpSubtraction: 15, OpMultiplication: 30, OpDivision: 30, OpExponents: 10},
}

// Generate produces count questions over the enabled operations. IDs are
// assigned startID..startID+count-1 so appended batches stay monotonic.
func Generate(ops Operations, diff Difficulty, count, startID int) []Question {
	enabled := ops.Enabled()
	if len(enabled) == 0 {
		return nil
	}
	qs := make([]Question, 0, count)
	for i := 0; i < count; i++ {
		q := buildQuestion(drawOperation(enabled, diff), diff)
		q.ID = startID + i
		qs = append(qs, q)
	}
	return qs
}

func drawOperation(enabled []Operation, diff Difficulty) Operation {
	weights := opWeights[diff]
	total := 0
	for _, op := range enabled {
		total += weights[op]
	}
	r := rand.Intn(total)
	for _, op := range enabled {
		r -= weights[op]
		if r < 0 {
			return op
		}
	}
	return enabled[len(enabled)-1]
}

func buildQuestion(op Operation, diff Difficulty) Question {
	switch op {
	case OpAddition:
		a, b := operand(addSubMax(diff)), operand(addSubMax(diff))
		return Question{Equation: fmt.Sprintf("%d + %d", a, b), Answer: a + b, Operation: op}

	case OpSubtraction:
		a, b := operand(addSubMax(diff)), operand(addSubMax(diff))
		if b > a {
			a, b = b, a
		}
		return Question{Equation: fmt.Sprintf("%d - %d", a, b), Answer: a - b, Operation: op}

	case OpMultiplication:
		a, b := operand(mulMax(diff)), operand(mulMax(diff))
		return Question{Equation: fmt.Sprintf("%d × %d", a, b), Answer: a * b, Operation: op}

	case OpDivision:
		// Built product-first so the quotient is always an exact integer.
		divisor, quotient := divisionRange(diff)
		return Question{
			Equation:  fmt.Sprintf("%d ÷ %d", divisor*quotient, divisor),
			Answer:    quotient,
			Operation: op,
		}

	case OpExponents:
		return exponentQuestion(diff)
	}
	panic("unreachable operation " + string(op))
}

func exponentQuestion(diff Difficulty) Question {
	switch rand.Intn(3) {
	case 0: // square
		base := randRange(2, squareMax(diff))
		return Question{Equation: fmt.Sprintf("%d²", base), Answer: base * base, Operation: OpExponents}
	case 1: // cube
		base := randRange(2, cubeMax(diff))
		return Question{Equation: fmt.Sprintf("%d³", base), Answer: base * base * base, Operation: OpExponents}
	default: // square root of a perfect square
		base := randRange(2, sqrtMax(diff))
		return Question{Equation: fmt.Sprintf("√%d", base*base), Answer: base, Operation: OpExponents}
	}
}

// operand draws in [1, max] with a 15% single-digit bias so higher
// difficulties don't turn into all-large-number monotony.
func operand(max int) int {
	if rand.Intn(100) < 15 {
		return randRange(1, 9)
	}
	return randRange(1, max)
}

func addSubMax(diff Difficulty) int {
	switch diff {
	case DifficultyMedium:
		return 999
	case DifficultyHard:
		return 99999
	default:
		return 99
	}
}

func mulMax(diff Difficulty) int {
	if diff == DifficultyEasy {
		return 99
	}
	return 999
}

func divisionRange(diff Difficulty) (divisor, quotient int) {
	switch diff {
	case DifficultyMedium:
		return randRange(2, 12), randRange(2, 25)
	case DifficultyHard:
		return randRange(2, 25), randRange(2, 99)
	default:
		return randRange(2, 9), randRange(2, 12)
	}
}

func squareMax(diff Difficulty) int {
	switch diff {
	case DifficultyMedium:
		return 15
	case DifficultyHard:
		return 30
	default:
		return 9
	}
}

func cubeMax(diff Difficulty) int {
	switch diff {
	case DifficultyMedium:
		return 8
	case DifficultyHard:
		return 12
	default:
		return 5
	}
}

func sqrtMax(diff Difficulty) int {
	switch diff {
	case DifficultyMedium:
		return 20
	case DifficultyHard:
		return 40
	default:
		return 12
	}
}

func randRange(lo, hi int) int {
	return lo + rand.Intn(hi-lo+1)
}
