// Package permissions defines the admin capabilities and the helpers that read and write
// them from the admins table.
package permissions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gorm.io/datatypes"
)

// Capability keys.
const (
	Movies    = "movies"
	Channels  = "channels"
	Broadcast = "broadcast"
	Admins    = "admins"
	Premium   = "premium"
)

// AnyAdmin is satisfied by every admin. It is not a stored capability.
const AnyAdmin = "*"

// Definition describes one capability shown in the admin panel.
type Definition struct {
	Key   string
	Label string
	Emoji string
}

var definitions = []Definition{
	{Key: Movies, Label: "Kinolar", Emoji: "🎬"},
	{Key: Channels, Label: "Kanallar", Emoji: "📢"},
	{Key: Broadcast, Label: "Xabar yuborish", Emoji: "✉️"},
	{Key: Admins, Label: "Adminlar", Emoji: "👮"},
	{Key: Premium, Label: "Premium", Emoji: "💎"},
}

// Definitions returns the capability definitions in panel order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// DefinitionMap indexes the definitions by key.
func DefinitionMap() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		out[def.Key] = def
	}
	return out
}

// All returns every capability key.
func All() []string {
	out := make([]string, 0, len(definitions))
	for _, def := range definitions {
		out = append(out, def.Key)
	}
	return out
}

// DefaultForNewAdmin is the capability set granted by the admin-add flow.
func DefaultForNewAdmin() []string {
	return []string{Movies}
}

// ParsePermissions decodes the JSON column into capability keys. Invalid JSON yields nil.
func ParsePermissions(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var keys []string
	if errUnmarshal := json.Unmarshal(raw, &keys); errUnmarshal != nil {
		return nil
	}
	return NormalizePermissions(keys)
}

// NormalizePermissions trims, deduplicates and sorts keys in panel order.
func NormalizePermissions(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	order := make(map[string]int, len(definitions))
	for i, def := range definitions {
		order[def.Key] = i
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, okI := order[out[i]]
		oj, okJ := order[out[j]]
		switch {
		case okI && okJ:
			return oi < oj
		case okI:
			return true
		case okJ:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// ValidatePermissions returns the unknown keys, if any.
func ValidatePermissions(keys []string) []string {
	defs := DefinitionMap()
	var invalid []string
	for _, key := range keys {
		if _, ok := defs[key]; !ok {
			invalid = append(invalid, key)
		}
	}
	return invalid
}

// MarshalPermissions encodes keys for storage.
func MarshalPermissions(keys []string) (datatypes.JSON, error) {
	normalized := NormalizePermissions(keys)
	if invalid := ValidatePermissions(normalized); len(invalid) > 0 {
		return nil, fmt.Errorf("permissions: unknown capabilities %s", strings.Join(invalid, ","))
	}
	if normalized == nil {
		normalized = []string{}
	}
	raw, errMarshal := json.Marshal(normalized)
	if errMarshal != nil {
		return nil, fmt.Errorf("permissions: marshal: %w", errMarshal)
	}
	return datatypes.JSON(raw), nil
}

// HasPermission reports whether key is present in keys.
func HasPermission(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// With returns keys plus key.
func With(keys []string, key string) []string {
	return NormalizePermissions(append(append([]string{}, keys...), key))
}

// Without returns keys minus key.
func Without(keys []string, key string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return NormalizePermissions(out)
}
