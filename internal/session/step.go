package session

import (
	"fmt"
	"strings"
)

// Step is the pipeline stage a session is in. Steps are totally ordered.
type Step int

const (
	StepInput Step = iota
	StepStoryGen
	StepRefImageGen
	StepVideoGen
	StepFinished
)

var stepNames = [...]string{
	StepInput:       "input",
	StepStoryGen:    "story-gen",
	StepRefImageGen: "ref-image-gen",
	StepVideoGen:    "video-gen",
	StepFinished:    "finished",
}

// AllSteps returns the steps in pipeline order.
func AllSteps() []Step {
	return []Step{StepInput, StepStoryGen, StepRefImageGen, StepVideoGen, StepFinished}
}

func (s Step) String() string {
	if s < StepInput || s > StepFinished {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// Valid reports whether s is one of the five known steps.
func (s Step) Valid() bool {
	return s >= StepInput && s <= StepFinished
}

// ParseStep resolves a step name such as "video-gen".
func ParseStep(value string) (Step, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	for i, name := range stepNames {
		if name == normalized {
			return Step(i), nil
		}
	}
	return StepInput, fmt.Errorf("unknown step %q", value)
}

// MarshalText encodes the step by name.
func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid step %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a step name.
func (s *Step) UnmarshalText(text []byte) error {
	parsed, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
