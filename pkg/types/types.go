package types

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Fields is an encoded field map as exchanged with every tier
type Fields map[string]interface{}

// Reserved keys inside a local snapshot
const (
	// SavedKey nests the remote-acknowledged snapshot so a local-only read
	// can reconstruct remote state
	SavedKey = "$saved"
	// StatusKey marks a local snapshot whose removal is still pending
	StatusKey = "$status"
)

// Clone returns a deep copy of f. Nested Fields and maps are copied too.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Fields:
		return val.Clone()
	case map[string]interface{}:
		return Fields(val).Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return v
	}
}

// Merge copies every entry of src into f, allocating f if needed, and
// returns the result.
func (f Fields) Merge(src Fields) Fields {
	if f == nil {
		f = make(Fields, len(src))
	}
	for k, v := range src {
		f[k] = cloneValue(v)
	}
	return f
}

// Diff returns the entries of f whose values differ from base, ignoring
// reserved keys. A nil base yields every non-reserved entry.
func (f Fields) Diff(base Fields) Fields {
	out := Fields{}
	for k, v := range f {
		if IsReserved(k) {
			continue
		}
		if base != nil {
			if old, ok := base[k]; ok && reflect.DeepEqual(normalize(old), normalize(v)) {
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Without returns a copy of f with the reserved keys stripped
func (f Fields) Without() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if !IsReserved(k) {
			out[k] = cloneValue(v)
		}
	}
	return out
}

// Keys returns the sorted field names
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsReserved reports whether name is a local snapshot bookkeeping key
func IsReserved(name string) bool {
	return strings.HasPrefix(name, "$")
}

// AsFields converts a decoded nested value back into Fields
func AsFields(v interface{}) (Fields, bool) {
	switch val := v.(type) {
	case Fields:
		return val, true
	case map[string]interface{}:
		return Fields(val), true
	default:
		return nil, false
	}
}

// normalize makes numbers that went through JSON compare equal to their
// in-memory integer form.
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case map[string]interface{}:
		return normalizeMap(n)
	case Fields:
		return normalizeMap(n)
	case []interface{}:
		out := make([]interface{}, len(n))
		for i := range n {
			out[i] = normalize(n[i])
		}
		return out
	default:
		return v
	}
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// Status is the lifecycle phase of a record
type Status string

const (
	StatusSynced        Status = "synced"
	StatusSavePending   Status = "save_pending"
	StatusRemovePending Status = "remove_pending"
	StatusRemoved       Status = "removed"
)

// CachePolicy controls how much of a database the local tier retains
type CachePolicy string

const (
	// CacheAll keeps every record mirrored locally
	CacheAll CachePolicy = "all"
	// CachePending keeps only records with changes not yet acknowledged remotely
	CachePending CachePolicy = "pending"
	// CacheNone never touches the local tier
	CacheNone CachePolicy = "none"
)

// ParseCachePolicy validates a policy name; empty means CacheAll
func ParseCachePolicy(s string) (CachePolicy, error) {
	switch CachePolicy(strings.ToLower(s)) {
	case "", CacheAll:
		return CacheAll, nil
	case CachePending:
		return CachePending, nil
	case CacheNone:
		return CacheNone, nil
	}
	return "", fmt.Errorf("unknown cache policy %q", s)
}

// ErrMissingKey is returned when a key field is absent
var ErrMissingKey = errors.New("missing key field")

// KeyFunc derives a record's identity from its fields. It may fill in a
// generated value.
type KeyFunc func(Fields) (string, error)

// SimpleKey keys records by a single field, generating a UUID when the field
// is absent.
func SimpleKey(field string) KeyFunc {
	return func(f Fields) (string, error) {
		v, ok := f[field]
		if !ok || v == nil || v == "" {
			v = uuid.NewString()
			f[field] = v
		}
		return formatKeyPart(v), nil
	}
}

// CompositeKey joins several fields with sep. Every field is required.
func CompositeKey(sep string, fields ...string) KeyFunc {
	return func(f Fields) (string, error) {
		parts := make([]string, 0, len(fields))
		for _, name := range fields {
			v, ok := f[name]
			if !ok || v == nil {
				return "", fmt.Errorf("%w: %s", ErrMissingKey, name)
			}
			parts = append(parts, formatKeyPart(v))
		}
		return strings.Join(parts, sep), nil
	}
}

func formatKeyPart(v interface{}) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	case float32:
		if n == float32(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	}
	return fmt.Sprint(v)
}
