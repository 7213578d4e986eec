package session

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/redis/go-redis/v9"
)

// GateMarkers remembers, per user, the content code waiting behind the subscription
// gate and the signature of the informational prompt last shown.
type GateMarkers interface {
	PendingCode(ctx context.Context, userID int64) (string, error)
	SetPendingCode(ctx context.Context, userID int64, code string) error
	ShownSignature(ctx context.Context, userID int64) (string, error)
	SetShownSignature(ctx context.Context, userID int64, signature string) error
	// ClearGate drops both markers.
	ClearGate(ctx context.Context, userID int64) error
}

type gateState struct {
	pending string
	shown   string
}

// MemoryMarkers keeps gate markers in process memory.
type MemoryMarkers struct {
	mu    sync.Mutex
	state map[int64]gateState
}

// NewMemoryMarkers constructs an empty MemoryMarkers.
func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{state: make(map[int64]gateState)}
}

func (m *MemoryMarkers) PendingCode(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[userID].pending, nil
}

func (m *MemoryMarkers) SetPendingCode(_ context.Context, userID int64, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state[userID]
	st.pending = code
	m.state[userID] = st
	return nil
}

func (m *MemoryMarkers) ShownSignature(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[userID].shown, nil
}

func (m *MemoryMarkers) SetShownSignature(_ context.Context, userID int64, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state[userID]
	st.shown = signature
	m.state[userID] = st
	return nil
}

func (m *MemoryMarkers) ClearGate(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, userID)
	return nil
}

const (
	fieldPending = "pending"
	fieldShown   = "shown"
)

// RedisMarkers keeps gate markers in one Redis hash per user.
type RedisMarkers struct {
	client *redis.Client
	prefix string
}

// NewRedisMarkers constructs RedisMarkers.
func NewRedisMarkers(client *redis.Client) *RedisMarkers {
	return &RedisMarkers{client: client, prefix: defaultKeyPrefix}
}

func (m *RedisMarkers) key(userID int64) string {
	return m.prefix + "gate:" + strconv.FormatInt(userID, 10)
}

func (m *RedisMarkers) get(ctx context.Context, userID int64, field string) (string, error) {
	val, err := m.client.HGet(ctx, m.key(userID), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errkind.Wrap(errkind.Persistence, "session.markers_get", err)
	}
	return val, nil
}

func (m *RedisMarkers) set(ctx context.Context, userID int64, field, value string) error {
	if errSet := m.client.HSet(ctx, m.key(userID), field, value).Err(); errSet != nil {
		return errkind.Wrap(errkind.Persistence, "session.markers_set", errSet)
	}
	return nil
}

func (m *RedisMarkers) PendingCode(ctx context.Context, userID int64) (string, error) {
	return m.get(ctx, userID, fieldPending)
}

func (m *RedisMarkers) SetPendingCode(ctx context.Context, userID int64, code string) error {
	return m.set(ctx, userID, fieldPending, code)
}

func (m *RedisMarkers) ShownSignature(ctx context.Context, userID int64) (string, error) {
	return m.get(ctx, userID, fieldShown)
}

func (m *RedisMarkers) SetShownSignature(ctx context.Context, userID int64, signature string) error {
	return m.set(ctx, userID, fieldShown, signature)
}

func (m *RedisMarkers) ClearGate(ctx context.Context, userID int64) error {
	if errDel := m.client.Del(ctx, m.key(userID)).Err(); errDel != nil {
		return errkind.Wrap(errkind.Persistence, "session.markers_clear", errDel)
	}
	return nil
}
