package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/session"
)

type stubCaps struct {
	allowed map[int64]bool
}

func (s *stubCaps) HasCapability(_ context.Context, userID int64, _ string) (bool, error) {
	return s.allowed[userID], nil
}

// twoStepFlow asks for a name then an age.
type twoStepFlow struct {
	finalizeErr error
	finalized   []string
}

func (f *twoStepFlow) Kind() session.Kind { return session.KindMovieAdd }
func (f *twoStepFlow) Capability() string { return "movies" }

func (f *twoStepFlow) Begin(context.Context, int64, session.Fields) (session.Fields, []messenger.Payload, error) {
	return session.MovieAddFields{}, []messenger.Payload{messenger.TextPayload("name?", nil)}, nil
}

func (f *twoStepFlow) Step(_ context.Context, s session.FlowSession, ev Event) (Transition, error) {
	fields := s.Fields.(session.MovieAddFields)
	switch s.Step {
	case 0:
		if ev.TrimmedText() == "" {
			return Transition{}, errkind.New(errkind.Validation, "stub", "name required")
		}
		fields.Name = ev.TrimmedText()
		return Transition{Fields: fields, Step: 1}, nil
	default:
		if f.finalizeErr != nil {
			return Transition{}, f.finalizeErr
		}
		f.finalized = append(f.finalized, fields.Name+"/"+ev.TrimmedText())
		return Transition{Done: true, Replies: []messenger.Payload{messenger.TextPayload("done", nil)}}, nil
	}
}

type oneStepUserFlow struct{}

func (oneStepUserFlow) Kind() session.Kind { return session.KindAdminAdd }
func (oneStepUserFlow) Capability() string { return "" }
func (oneStepUserFlow) Begin(context.Context, int64, session.Fields) (session.Fields, []messenger.Payload, error) {
	return session.AdminAddFields{}, nil, nil
}
func (oneStepUserFlow) Step(context.Context, session.FlowSession, Event) (Transition, error) {
	return Transition{Done: true}, nil
}

func newTestEngine(def *twoStepFlow) (*Engine, *session.MemoryStore, *stubCaps) {
	store := session.NewMemoryStore()
	caps := &stubCaps{allowed: map[int64]bool{1: true}}
	return NewEngine(store, caps, def, oneStepUserFlow{}), store, caps
}

func TestDispatchWithoutSession(t *testing.T) {
	engine, _, _ := newTestEngine(&twoStepFlow{})
	out, err := engine.Dispatch(context.Background(), Event{UserID: 1, Text: "x"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Status != StatusNoSession {
		t.Fatalf("expected no session, got %s", out.Status)
	}
}

func TestValidationKeepsSessionThenCompletes(t *testing.T) {
	def := &twoStepFlow{}
	engine, store, _ := newTestEngine(def)
	ctx := context.Background()

	if _, err := engine.Start(ctx, 1, session.KindMovieAdd, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	out, err := engine.Dispatch(ctx, Event{UserID: 1, Text: "   "})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Status != StatusRejected || !errkind.Is(out.Err, errkind.Validation) {
		t.Fatalf("expected validation rejection, got %+v", out)
	}
	if len(out.Replies) != 1 || out.Replies[0].Text != "name required" {
		t.Fatalf("expected re-prompt with message, got %+v", out.Replies)
	}
	sess, ok, _ := store.Get(ctx, 1)
	if !ok || sess.Step != 0 {
		t.Fatalf("expected session unchanged at step 0, got %+v", sess)
	}

	out, _ = engine.Dispatch(ctx, Event{UserID: 1, Text: "Dune"})
	if out.Status != StatusAdvanced || out.Step != 1 {
		t.Fatalf("expected advance to step 1, got %+v", out)
	}
	out, _ = engine.Dispatch(ctx, Event{UserID: 1, Text: "42"})
	if out.Status != StatusCompleted {
		t.Fatalf("expected completion, got %+v", out)
	}
	if _, ok, _ := store.Get(ctx, 1); ok {
		t.Fatalf("expected session cleared after completion")
	}
	if len(def.finalized) != 1 || def.finalized[0] != "Dune/42" {
		t.Fatalf("unexpected finalize calls %v", def.finalized)
	}
}

func TestStartReplacesExistingSession(t *testing.T) {
	engine, store, _ := newTestEngine(&twoStepFlow{})
	ctx := context.Background()

	_, _ = engine.Start(ctx, 1, session.KindMovieAdd, nil)
	_, _ = engine.Dispatch(ctx, Event{UserID: 1, Text: "Dune"})

	if _, err := engine.Start(ctx, 1, session.KindAdminAdd, nil); err != nil {
		t.Fatalf("start second flow: %v", err)
	}
	sess, ok, _ := store.Get(ctx, 1)
	if !ok || sess.Kind != session.KindAdminAdd || sess.Step != 0 {
		t.Fatalf("expected fresh admin-add session, got %+v", sess)
	}
	if _, isAdminAdd := sess.Fields.(session.AdminAddFields); !isAdminAdd {
		t.Fatalf("expected no fields carried over, got %T", sess.Fields)
	}
}

func TestStartRequiresCapability(t *testing.T) {
	engine, store, _ := newTestEngine(&twoStepFlow{})
	ctx := context.Background()

	_, err := engine.Start(ctx, 2, session.KindMovieAdd, nil)
	if !errkind.Is(err, errkind.Permission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if _, ok, _ := store.Get(ctx, 2); ok {
		t.Fatalf("expected no session for denied start")
	}
}

func TestRevokedCapabilityAbortsFlow(t *testing.T) {
	engine, store, caps := newTestEngine(&twoStepFlow{})
	ctx := context.Background()

	_, _ = engine.Start(ctx, 1, session.KindMovieAdd, nil)
	caps.allowed[1] = false

	out, err := engine.Dispatch(ctx, Event{UserID: 1, Text: "Dune"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Status != StatusAborted || !errkind.Is(out.Err, errkind.Permission) {
		t.Fatalf("expected aborted with permission error, got %+v", out)
	}
	if _, ok, _ := store.Get(ctx, 1); ok {
		t.Fatalf("expected session cleared on abort")
	}
}

func TestPersistenceFailureKeepsSession(t *testing.T) {
	def := &twoStepFlow{finalizeErr: errkind.Wrap(errkind.Persistence, "stub", errors.New("disk full"))}
	engine, store, _ := newTestEngine(def)
	ctx := context.Background()

	_, _ = engine.Start(ctx, 1, session.KindMovieAdd, nil)
	_, _ = engine.Dispatch(ctx, Event{UserID: 1, Text: "Dune"})

	_, err := engine.Dispatch(ctx, Event{UserID: 1, Text: "42"})
	if !errkind.Is(err, errkind.Persistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	sess, ok, _ := store.Get(ctx, 1)
	if !ok || sess.Step != 1 {
		t.Fatalf("expected session kept at step 1, got %+v %v", sess, ok)
	}
}

func TestCancelFromAnyStep(t *testing.T) {
	engine, store, _ := newTestEngine(&twoStepFlow{})
	ctx := context.Background()

	_, _ = engine.Start(ctx, 1, session.KindMovieAdd, nil)
	_, _ = engine.Dispatch(ctx, Event{UserID: 1, Text: "Dune"})
	had, err := engine.Cancel(ctx, 1)
	if err != nil || !had {
		t.Fatalf("cancel: %v %v", had, err)
	}
	if _, ok, _ := store.Get(ctx, 1); ok {
		t.Fatalf("expected session cleared")
	}
}

func TestCheckFieldsRejectsForeignVariant(t *testing.T) {
	t.Parallel()

	err := checkFields(session.FlowSession{Kind: session.KindPremium, Fields: session.BroadcastFields{}})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
	if err := checkFields(session.FlowSession{Kind: session.KindPremium, Fields: session.PremiumFields{}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// targetFlow requires a capability named after the edited target.
type targetFlow struct{}

func (targetFlow) Kind() session.Kind { return session.KindSettingEdit }
func (targetFlow) Capability() string { return "admins" }
func (targetFlow) CapabilityFor(fields session.Fields) string {
	return fields.(session.SettingEditFields).Target
}
func (targetFlow) Begin(_ context.Context, _ int64, initial session.Fields) (session.Fields, []messenger.Payload, error) {
	return initial, nil, nil
}
func (targetFlow) Step(context.Context, session.FlowSession, Event) (Transition, error) {
	return Transition{Done: true}, nil
}

type capSet map[string]bool

func (c capSet) HasCapability(_ context.Context, _ int64, capability string) (bool, error) {
	return c[capability], nil
}

func TestScopedCapabilityUsesSessionFields(t *testing.T) {
	engine := NewEngine(session.NewMemoryStore(), capSet{"premium": true}, targetFlow{})
	ctx := context.Background()

	if _, err := engine.Start(ctx, 1, session.KindSettingEdit, session.SettingEditFields{Target: "channels"}); !errkind.Is(err, errkind.Permission) {
		t.Fatalf("expected permission error for channels target, got %v", err)
	}
	out, err := engine.Start(ctx, 1, session.KindSettingEdit, session.SettingEditFields{Target: "premium"})
	if err != nil || out.Status != StatusStarted {
		t.Fatalf("expected premium target to start, got %+v %v", out, err)
	}
}
