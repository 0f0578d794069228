package grading

// Key is a minimal view of a solution needed for grading.
type Key struct {
	Choice bool
	Points int
}

// Response is a minimal view of an answer needed for grading.
// Key is nil when the answer references no solution.
type Response struct {
	TaskType string
	Choice   bool
	Submit   bool
	Key      *Key
}

// Strategy grades a single response.
type Strategy interface {
	Grade(r Response) int
}

// Grader routes by task type to the correct Strategy.
type Grader interface {
	Grade(r Response) int
	Total(rs []Response) int
}

type defaultGrader struct {
	strategies map[string]Strategy
	fallback   Strategy
}

// NewDefaultGrader installs the built-in strategies. Every task type is graded
// by boolean match; free text is recorded but never compared. Per-type entries
// are where a type-specific Strategy (text matching, partial credit) plugs in.
func NewDefaultGrader() Grader {
	match := choiceMatchStrategy{}
	return &defaultGrader{
		strategies: map[string]Strategy{
			"MULTI_CHOICE": match,
			"TRUE_FALSE":   match,
			"TEXT":         match,
		},
		fallback: match,
	}
}

func (g *defaultGrader) Grade(r Response) int {
	s, ok := g.strategies[r.TaskType]
	if !ok {
		s = g.fallback
	}
	return s.Grade(r)
}

// Total sums per-response grades; an empty slice totals 0.
func (g *defaultGrader) Total(rs []Response) int {
	sum := 0
	for _, r := range rs {
		sum += g.Grade(r)
	}
	return sum
}

type choiceMatchStrategy struct{}

func (choiceMatchStrategy) Grade(r Response) int {
	if r.Key == nil {
		return 0
	}
	if r.Choice == r.Key.Choice && r.Submit {
		return r.Key.Points
	}
	return 0
}
