package pipeline

import (
	"errors"
	"testing"
	"time"

	"storyreel/internal/services"
	"storyreel/internal/session"
)

func withEntities(step session.Step, story, ref bool) session.Session {
	s := session.New("p", time.Unix(0, 0))
	s.Step = step
	if story {
		s.Story = &session.Story{Title: "T"}
	}
	if ref {
		s.ReferenceImage = &session.ReferenceImage{Path: "ref.png"}
	}
	return s
}

func TestJumpBackwardAlwaysSucceeds(t *testing.T) {
	for _, from := range session.AllSteps() {
		for _, to := range session.AllSteps() {
			if to > from {
				continue
			}
			out, err := JumpTo(withEntities(from, false, false), to, false)
			if err != nil {
				t.Fatalf("%s -> %s: unexpected error %v", from, to, err)
			}
			if out.Step != to {
				t.Fatalf("%s -> %s: got %s", from, to, out.Step)
			}
		}
	}
}

func TestJumpForwardRequiresEntities(t *testing.T) {
	cases := []struct {
		name       string
		story, ref bool
		target     session.Step
		ok         bool
	}{
		{"story-gen without story", false, false, session.StepStoryGen, false},
		{"story-gen with story", true, false, session.StepStoryGen, true},
		{"ref-image-gen with story", true, false, session.StepRefImageGen, true},
		{"video-gen without reference", true, false, session.StepVideoGen, false},
		{"video-gen with reference", true, true, session.StepVideoGen, true},
		{"finished without reference", true, false, session.StepFinished, false},
		{"finished with everything", true, true, session.StepFinished, true},
		{"finished with reference but no story", false, true, session.StepFinished, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := withEntities(session.StepInput, tc.story, tc.ref)
			out, err := JumpTo(in, tc.target, false)
			if tc.ok {
				if err != nil || out.Step != tc.target {
					t.Fatalf("expected success, got step=%s err=%v", out.Step, err)
				}
				return
			}
			if !IsPrerequisite(err) || !errors.Is(err, services.ErrPrecondition) {
				t.Fatalf("expected prerequisite error, got %v", err)
			}
			if out.Step != session.StepInput {
				t.Fatalf("rejected jump changed step to %s", out.Step)
			}
		})
	}
}

func TestJumpRejectedWhileBusy(t *testing.T) {
	in := withEntities(session.StepFinished, true, true)
	out, err := JumpTo(in, session.StepInput, true)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if out.Step != session.StepFinished {
		t.Fatalf("busy jump changed step to %s", out.Step)
	}
}

func TestJumpRejectsUnknownStep(t *testing.T) {
	if _, err := JumpTo(withEntities(session.StepInput, true, true), session.Step(9), false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGateExclusive(t *testing.T) {
	var g Gate
	release, err := g.Acquire("generate")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if op, busy := g.Busy(); !busy || op != "generate" {
		t.Fatalf("expected busy with generate, got %q %v", op, busy)
	}
	if _, err := g.Acquire("export"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	release()
	release()
	if _, busy := g.Busy(); busy {
		t.Fatal("expected gate released")
	}
	if _, err := g.Acquire("export"); err != nil {
		t.Fatalf("expected re-acquire to succeed: %v", err)
	}
}
