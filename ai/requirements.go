package ai

// Level is a coarse three-step scale.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
)

// String returns the level's name.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	}
	return "unknown"
}

// Requirements describes what a completion call needs from the model.
type Requirements struct {
	Reasoning  Level
	Accuracy   Level
	Speed      Level
	Creativity Level
}

// Common requirement profiles.
var (
	// Classification is short, deterministic structured output.
	Classification = Requirements{Reasoning: LevelLow, Accuracy: LevelHigh, Speed: LevelHigh, Creativity: LevelLow}

	// Scoring is a single numeric judgement.
	Scoring = Requirements{Reasoning: LevelMedium, Accuracy: LevelHigh, Speed: LevelHigh, Creativity: LevelLow}

	// Synthesis is a grounded prose answer.
	Synthesis = Requirements{Reasoning: LevelHigh, Accuracy: LevelHigh, Speed: LevelMedium, Creativity: LevelMedium}
)

// Temperature maps the creativity level to a sampling temperature.
func (r Requirements) Temperature() float64 {
	switch r.Creativity {
	case LevelHigh:
		return 0.9
	case LevelMedium:
		return 0.5
	}
	if r.Accuracy == LevelHigh {
		return 0.0
	}
	return 0.2
}

// MaxTokens maps the speed level to a response token budget.
// Faster responses get a smaller budget.
func (r Requirements) MaxTokens() int {
	switch r.Speed {
	case LevelHigh:
		return 512
	case LevelMedium:
		return 1024
	}
	return 2048
}
