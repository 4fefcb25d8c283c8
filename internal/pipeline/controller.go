// Package pipeline gates which step a session may occupy.
//
// Steps form a total order (input < story-gen < ref-image-gen < video-gen <
// finished). Moving backward always succeeds; moving forward requires the
// entity the target step consumes. While a long-running operation holds the
// Gate, every transition is refused.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"storyreel/internal/services"
	"storyreel/internal/session"
)

var (
	// ErrPrerequisite is returned when a forward jump lacks its entity.
	ErrPrerequisite = fmt.Errorf("%w: step prerequisite missing", services.ErrPrecondition)
	// ErrBusy is returned while a long-running operation holds the gate.
	ErrBusy = services.ErrBusy
)

// Prerequisite reports why target cannot be entered, or nil.
func Prerequisite(s session.Session, target session.Step) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown step %d", services.ErrValidation, int(target))
	}
	if target >= session.StepStoryGen && !s.HasStory() {
		return fmt.Errorf("%w: %s needs a story", ErrPrerequisite, target)
	}
	if target >= session.StepVideoGen && !s.HasReferenceImage() {
		return fmt.Errorf("%w: %s needs a reference image", ErrPrerequisite, target)
	}
	return nil
}

// JumpTo returns the session moved to target. Backward and same-step moves
// always succeed; forward moves succeed only when Prerequisite is satisfied.
// A rejected move returns the input unchanged alongside the error.
func JumpTo(s session.Session, target session.Step, busy bool) (session.Session, error) {
	if busy {
		return s, ErrBusy
	}
	if !target.Valid() {
		return s, fmt.Errorf("%w: unknown step %d", services.ErrValidation, int(target))
	}
	if target <= s.Step {
		out := s.Clone()
		out.Step = target
		return out, nil
	}
	if err := Prerequisite(s, target); err != nil {
		return s, err
	}
	out := s.Clone()
	out.Step = target
	return out, nil
}

// IsPrerequisite reports whether err is a rejected forward jump.
func IsPrerequisite(err error) bool {
	return errors.Is(err, ErrPrerequisite)
}

// Gate serializes long-running operations (batch generation, export) and
// exposes their presence to the transition function.
type Gate struct {
	mu sync.Mutex
	op string
}

// Acquire claims the gate for op. The returned release func is idempotent.
func (g *Gate) Acquire(op string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.op != "" {
		return nil, fmt.Errorf("%w: %s in progress", ErrBusy, g.op)
	}
	g.op = op
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.op = ""
			g.mu.Unlock()
		})
	}, nil
}

// Busy reports the running operation, if any.
func (g *Gate) Busy() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.op, g.op != ""
}
