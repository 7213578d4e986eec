package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "prokinobot:"

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, errParse := redis.ParseURL(url)
	if errParse != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", errParse)
	}
	client := redis.NewClient(opts)
	if errPing := client.Ping(ctx).Err(); errPing != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: redis ping: %w", errPing)
	}
	return client, nil
}

// RedisStore keeps sessions in Redis so several bot replicas share them. Idle sessions
// expire through the key TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore. A zero ttl keeps sessions until cleared.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: defaultKeyPrefix, ttl: ttl}
}

func (s *RedisStore) key(userID int64) string {
	return s.prefix + "flow:" + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (FlowSession, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return FlowSession{}, false, nil
	}
	if err != nil {
		return FlowSession{}, false, errkind.Wrap(errkind.Persistence, "session.redis_get", err)
	}
	sess, errDecode := Decode(raw)
	if errDecode != nil {
		return FlowSession{}, false, errkind.Wrap(errkind.Persistence, "session.redis_get", errDecode)
	}
	return sess, true, nil
}

func (s *RedisStore) Set(ctx context.Context, sess FlowSession) error {
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now().UTC()
	}
	raw, errEncode := Encode(sess)
	if errEncode != nil {
		return errEncode
	}
	if errSet := s.client.Set(ctx, s.key(sess.UserID), raw, s.ttl).Err(); errSet != nil {
		return errkind.Wrap(errkind.Persistence, "session.redis_set", errSet)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if errDel := s.client.Del(ctx, s.key(userID)).Err(); errDel != nil {
		return errkind.Wrap(errkind.Persistence, "session.redis_clear", errDel)
	}
	return nil
}

// Sweep is a no-op; Redis expires idle keys itself.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
