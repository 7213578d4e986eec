package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/session"
	log "github.com/sirupsen/logrus"
)

// CapabilityChecker answers capability questions about a user.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, userID int64, capability string) (bool, error)
}

const permissionLostText = "⛔️ Sizda bu amal uchun ruxsat yo'q. Jarayon bekor qilindi."

// Engine executes flow definitions. Callers must serialize events of the same user.
type Engine struct {
	store       session.Store
	caps        CapabilityChecker
	definitions map[session.Kind]Definition
	now         func() time.Time
}

// NewEngine constructs an Engine with the given definitions.
func NewEngine(store session.Store, caps CapabilityChecker, defs ...Definition) *Engine {
	e := &Engine{
		store:       store,
		caps:        caps,
		definitions: make(map[session.Kind]Definition, len(defs)),
		now:         time.Now,
	}
	for _, def := range defs {
		e.Register(def)
	}
	return e
}

// Register adds or replaces a definition.
func (e *Engine) Register(def Definition) {
	if def == nil {
		return
	}
	e.definitions[def.Kind()] = def
}

func (e *Engine) definition(kind session.Kind) (Definition, error) {
	def, ok := e.definitions[kind]
	if !ok {
		return nil, fmt.Errorf("flow: no definition for %q", kind)
	}
	return def, nil
}

func (e *Engine) allowed(ctx context.Context, def Definition, userID int64, fields session.Fields) error {
	capability := def.Capability()
	if scoped, ok := def.(ScopedDefinition); ok {
		capability = scoped.CapabilityFor(fields)
	}
	if capability == "" {
		return nil
	}
	ok, err := e.caps.HasCapability(ctx, userID, capability)
	if err != nil {
		return err
	}
	if !ok {
		return errkind.New(errkind.Permission, "flow."+string(def.Kind()), permissionLostText)
	}
	return nil
}

// Start begins a flow, replacing whatever session the user had.
func (e *Engine) Start(ctx context.Context, userID int64, kind session.Kind, initial session.Fields) (Outcome, error) {
	def, err := e.definition(kind)
	if err != nil {
		return Outcome{}, err
	}
	if errAllowed := e.allowed(ctx, def, userID, initial); errAllowed != nil {
		return Outcome{}, errAllowed
	}
	fields, replies, errBegin := def.Begin(ctx, userID, initial)
	if errBegin != nil {
		return Outcome{}, errBegin
	}
	now := e.now().UTC()
	sess := session.FlowSession{
		UserID:    userID,
		Kind:      kind,
		Step:      0,
		Fields:    fields,
		StartedAt: now,
		UpdatedAt: now,
	}
	if errSet := e.store.Set(ctx, sess); errSet != nil {
		return Outcome{}, errSet
	}
	log.WithFields(log.Fields{"user_id": userID, "flow": kind}).Debug("flow started")
	return Outcome{Status: StatusStarted, Kind: kind, Replies: replies}, nil
}

// Active returns the user's session, if any.
func (e *Engine) Active(ctx context.Context, userID int64) (session.FlowSession, bool, error) {
	return e.store.Get(ctx, userID)
}

// Cancel clears the user's session from any step.
func (e *Engine) Cancel(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := e.store.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if errClear := e.store.Clear(ctx, userID); errClear != nil {
		return false, errClear
	}
	return ok, nil
}

// Dispatch feeds ev to the user's active flow. A returned error is a Persistence,
// Transport or internal failure; the session is left as it was.
func (e *Engine) Dispatch(ctx context.Context, ev Event) (Outcome, error) {
	sess, ok, err := e.store.Get(ctx, ev.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Status: StatusNoSession}, nil
	}
	if errFields := checkFields(sess); errFields != nil {
		_ = e.store.Clear(ctx, ev.UserID)
		return Outcome{}, errFields
	}
	def, err := e.definition(sess.Kind)
	if err != nil {
		_ = e.store.Clear(ctx, ev.UserID)
		return Outcome{}, err
	}

	if errAllowed := e.allowed(ctx, def, ev.UserID, sess.Fields); errAllowed != nil {
		if !errkind.Is(errAllowed, errkind.Permission) {
			return Outcome{}, errAllowed
		}
		if errClear := e.store.Clear(ctx, ev.UserID); errClear != nil {
			return Outcome{}, errClear
		}
		log.WithFields(log.Fields{"user_id": ev.UserID, "flow": sess.Kind}).Info("flow aborted: capability revoked")
		return Outcome{
			Status:  StatusAborted,
			Kind:    sess.Kind,
			Step:    sess.Step,
			Replies: []messenger.Payload{messenger.TextPayload(permissionLostText, nil)},
			Err:     errAllowed,
		}, nil
	}

	tr, errStep := def.Step(ctx, sess, ev)
	if errStep != nil {
		switch errkind.KindOf(errStep) {
		case errkind.Validation, errkind.Conflict:
			replies := tr.Replies
			if len(replies) == 0 {
				replies = []messenger.Payload{messenger.TextPayload(errkind.Message(errStep, "❌ Noto'g'ri qiymat, qaytadan urinib ko'ring."), nil)}
			}
			return Outcome{Status: StatusRejected, Kind: sess.Kind, Step: sess.Step, Replies: replies, Err: errStep}, nil
		default:
			log.WithError(errStep).WithFields(log.Fields{"user_id": ev.UserID, "flow": sess.Kind, "step": sess.Step}).Warn("flow step failed")
			return Outcome{}, errStep
		}
	}

	if tr.Done {
		if errClear := e.store.Clear(ctx, ev.UserID); errClear != nil {
			return Outcome{}, errClear
		}
		log.WithFields(log.Fields{"user_id": ev.UserID, "flow": sess.Kind}).Debug("flow completed")
		return Outcome{Status: StatusCompleted, Kind: sess.Kind, Step: sess.Step, Replies: tr.Replies}, nil
	}

	next := sess
	if tr.Fields != nil {
		next.Fields = tr.Fields
	}
	next.Step = tr.Step
	next.UpdatedAt = e.now().UTC()
	if errFields := checkFields(next); errFields != nil {
		return Outcome{}, errFields
	}
	if errSet := e.store.Set(ctx, next); errSet != nil {
		return Outcome{}, errSet
	}
	return Outcome{Status: StatusAdvanced, Kind: next.Kind, Step: next.Step, Replies: tr.Replies}, nil
}

// checkFields rejects sessions whose field variant does not belong to their kind.
func checkFields(s session.FlowSession) error {
	var kind session.Kind
	switch s.Fields.(type) {
	case session.MovieAddFields:
		kind = session.KindMovieAdd
	case session.BroadcastFields:
		kind = session.KindBroadcast
	case session.AdminAddFields:
		kind = session.KindAdminAdd
	case session.ChannelConfigFields:
		kind = session.KindChannelConfig
	case session.PremiumFields:
		kind = session.KindPremium
	case session.SettingEditFields:
		kind = session.KindSettingEdit
	default:
		return fmt.Errorf("flow: unsupported fields %T", s.Fields)
	}
	if kind != s.Kind {
		return fmt.Errorf("flow: fields %T do not belong to %q", s.Fields, s.Kind)
	}
	return nil
}
