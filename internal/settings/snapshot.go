package settings

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
)

type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var current atomic.Pointer[snapshot]

func init() {
	current.Store(&snapshot{values: map[string]json.RawMessage{}})
}

// StoreSnapshot replaces the in-memory copy of the settings table.
func StoreSnapshot(updatedAt time.Time, values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		next[key] = append(json.RawMessage(nil), v...)
	}
	current.Store(&snapshot{updatedAt: updatedAt.UTC(), values: next})
}

// UpdatedAt returns the newest row timestamp of the loaded snapshot.
func UpdatedAt() time.Time {
	return current.Load().updatedAt
}

// Value returns a copy of the raw value stored under key.
func Value(key string) (json.RawMessage, bool) {
	val, ok := current.Load().values[strings.TrimSpace(key)]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), val...), true
}

// decode unmarshals the value under key into out. It reports false when the key is
// missing or holds invalid JSON.
func decode(key string, out any) bool {
	raw, ok := Value(key)
	if !ok || len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}
