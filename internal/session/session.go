// Package session keeps the single in-progress flow of each user and the per-user
// subscription gate markers.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kind names a flow.
type Kind string

const (
	KindMovieAdd      Kind = "movie_add"
	KindBroadcast     Kind = "broadcast_compose"
	KindAdminAdd      Kind = "admin_add"
	KindChannelConfig Kind = "channel_config"
	KindPremium       Kind = "premium_purchase"
	KindSettingEdit   Kind = "setting_edit"
	KindMovieLookup   Kind = "movie_lookup"
)

// Fields is the flow-specific state of a session. Each flow kind has exactly one
// implementation.
type Fields interface {
	FlowKind() Kind
}

// MovieAddFields collects a content item.
type MovieAddFields struct {
	MediaKind       string `json:"media_kind,omitempty"`
	FileID          string `json:"file_id,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Name            string `json:"name,omitempty"`
	Genre           string `json:"genre,omitempty"`
}

func (MovieAddFields) FlowKind() Kind { return KindMovieAdd }

// Broadcast job states.
const (
	BroadcastCollectingContent = "collecting_content"
	BroadcastCollectingButtons = "collecting_buttons"
	BroadcastReady             = "ready"
	BroadcastSent              = "sent"
)

// ButtonSpec is a URL button of a broadcast.
type ButtonSpec struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// BroadcastFields is the broadcast job being composed.
type BroadcastFields struct {
	State       string       `json:"state"`
	ContentKind string       `json:"content_kind,omitempty"`
	FileID      string       `json:"file_id,omitempty"`
	Caption     string       `json:"caption,omitempty"`
	Buttons     []ButtonSpec `json:"buttons,omitempty"`
}

func (BroadcastFields) FlowKind() Kind { return KindBroadcast }

// AdminAddFields carries nothing; the flow has a single step.
type AdminAddFields struct{}

func (AdminAddFields) FlowKind() Kind { return KindAdminAdd }

// ChannelConfigFields selects what kind of requirement is being added.
type ChannelConfigFields struct {
	Class    string `json:"class"`
	Required bool   `json:"required"`
}

func (ChannelConfigFields) FlowKind() Kind { return KindChannelConfig }

// Premium purchase states.
const (
	PremiumAwaitingPlan    = "awaiting_plan"
	PremiumPlanSelected    = "plan_selected"
	PremiumAwaitingReceipt = "awaiting_receipt"
)

// PremiumFields is the user's plan selection.
type PremiumFields struct {
	State  string `json:"state"`
	Months int    `json:"months,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

func (PremiumFields) FlowKind() Kind { return KindPremium }

// SettingEditFields names the setting a single text input will replace.
type SettingEditFields struct {
	Target string `json:"target"`
}

func (SettingEditFields) FlowKind() Kind { return KindSettingEdit }

// Movie lookup actions.
const (
	LookupDelete = "delete"
	LookupSearch = "search"
)

// MovieLookupFields selects what the single text input is used for.
type MovieLookupFields struct {
	Action string `json:"action"`
}

func (MovieLookupFields) FlowKind() Kind { return KindMovieLookup }

// FlowSession is the in-progress flow of one user.
type FlowSession struct {
	UserID    int64
	Kind      Kind
	Step      int
	Fields    Fields
	StartedAt time.Time
	UpdatedAt time.Time
}

// Valid reports whether the fields belong to the session kind.
func (s FlowSession) Valid() bool {
	return s.Fields != nil && s.Fields.FlowKind() == s.Kind
}

// Clone returns a deep copy.
func (s FlowSession) Clone() FlowSession {
	out := s
	out.Fields = cloneFields(s.Fields)
	return out
}

func cloneFields(f Fields) Fields {
	switch v := f.(type) {
	case BroadcastFields:
		v.Buttons = append([]ButtonSpec(nil), v.Buttons...)
		return v
	default:
		return f
	}
}

// Store holds at most one FlowSession per user.
type Store interface {
	Get(ctx context.Context, userID int64) (FlowSession, bool, error)
	Set(ctx context.Context, s FlowSession) error
	Clear(ctx context.Context, userID int64) error
	// Sweep removes sessions idle since before cutoff and returns how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

type envelope struct {
	UserID    int64           `json:"user_id"`
	Kind      Kind            `json:"kind"`
	Step      int             `json:"step"`
	Fields    json.RawMessage `json:"fields"`
	StartedAt time.Time       `json:"started_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Encode serializes a session with its kind as the discriminator.
func Encode(s FlowSession) ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("session: fields do not match kind %q", s.Kind)
	}
	fields, errMarshal := json.Marshal(s.Fields)
	if errMarshal != nil {
		return nil, fmt.Errorf("session: marshal fields: %w", errMarshal)
	}
	return json.Marshal(envelope{
		UserID:    s.UserID,
		Kind:      s.Kind,
		Step:      s.Step,
		Fields:    fields,
		StartedAt: s.StartedAt,
		UpdatedAt: s.UpdatedAt,
	})
}

// Decode is the inverse of Encode.
func Decode(raw []byte) (FlowSession, error) {
	var env envelope
	if errUnmarshal := json.Unmarshal(raw, &env); errUnmarshal != nil {
		return FlowSession{}, fmt.Errorf("session: unmarshal: %w", errUnmarshal)
	}
	fields, errFields := decodeFields(env.Kind, env.Fields)
	if errFields != nil {
		return FlowSession{}, errFields
	}
	return FlowSession{
		UserID:    env.UserID,
		Kind:      env.Kind,
		Step:      env.Step,
		Fields:    fields,
		StartedAt: env.StartedAt,
		UpdatedAt: env.UpdatedAt,
	}, nil
}

func decodeFields(kind Kind, raw json.RawMessage) (Fields, error) {
	var target Fields
	var err error
	switch kind {
	case KindMovieAdd:
		var f MovieAddFields
		err = unmarshalFields(raw, &f)
		target = f
	case KindBroadcast:
		var f BroadcastFields
		err = unmarshalFields(raw, &f)
		target = f
	case KindAdminAdd:
		target = AdminAddFields{}
	case KindChannelConfig:
		var f ChannelConfigFields
		err = unmarshalFields(raw, &f)
		target = f
	case KindPremium:
		var f PremiumFields
		err = unmarshalFields(raw, &f)
		target = f
	case KindSettingEdit:
		var f SettingEditFields
		err = unmarshalFields(raw, &f)
		target = f
	case KindMovieLookup:
		var f MovieLookupFields
		err = unmarshalFields(raw, &f)
		target = f
	default:
		return nil, fmt.Errorf("session: unknown kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("session: decode %s fields: %w", kind, err)
	}
	return target, nil
}

func unmarshalFields(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}
