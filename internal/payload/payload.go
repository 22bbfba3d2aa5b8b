package payload

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"discord-entity-cache/internal/snowflake"
)

var ErrMalformed = errors.New("payload: malformed")

// Payload is one parsed gateway / REST object.
// Values are strings, json.Number, bools, nil, nested maps or lists thereof.
//
// Every accessor takes the value to use when the key is missing or carries an
// unexpected type. Delta events omit unchanged keys, so a missing key is never
// an error.
type Payload map[string]any

// Decode parses one JSON object. Numbers are kept as json.Number so large IDs
// never pass through float64.
func Decode(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p == nil {
		return nil, ErrMalformed
	}
	return p, nil
}

// DecodeList parses a JSON array of objects (a history page)
func DecodeList(data []byte) ([]Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var list []Payload
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decode payload list: %w", err)
	}
	return list, nil
}

// Len is the number of keys present
func (p Payload) Len() int {
	return len(p)
}

// Has reports whether the key is present (even when null)
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// IsNull reports whether the key is present with a null value
func (p Payload) IsNull(key string) bool {
	v, ok := p[key]
	return ok && v == nil
}

func (p Payload) String(key, def string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return def
}

// NullableString distinguishes missing (def), null (nil) and set (&value)
func (p Payload) NullableString(key string, def *string) *string {
	v, ok := p[key]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func (p Payload) Bool(key string, def bool) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return def
}

func (p Payload) Int(key string, def int) int {
	v, ok := p.Int64(key)
	if !ok || v > math.MaxInt || v < math.MinInt {
		return def
	}
	return int(v)
}

// Int64 reads a whole number from any numeric representation
func (p Payload) Int64(key string) (int64, bool) {
	switch v := p[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

// Bits reads a bitfield. Permission sets arrive as decimal strings, other flag
// sets as numbers; both are accepted.
func (p Payload) Bits(key string, def uint64) uint64 {
	switch v := p[key].(type) {
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return def
		}
		return n
	case nil:
		return def
	default:
		if v, ok := uintOf(v); ok {
			return v
		}
		return def
	}
}

// ID parses a snowflake; missing or invalid keys yield 0
func (p Payload) ID(key string) uint64 {
	id, _ := idOf(p[key])
	return id
}

// IDs parses a list of snowflakes, skipping invalid entries
func (p Payload) IDs(key string) []uint64 {
	list, ok := p[key].([]any)
	if !ok {
		if ids, ok := p[key].([]uint64); ok {
			return append([]uint64(nil), ids...)
		}
		if strs, ok := p[key].([]string); ok {
			list = make([]any, len(strs))
			for i, s := range strs {
				list[i] = s
			}
		} else {
			return nil
		}
	}

	ids := make([]uint64, 0, len(list))
	for _, raw := range list {
		if id, ok := idOf(raw); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (p Payload) Strings(key string) []string {
	switch list := p[key].(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, raw := range list {
			if s, ok := raw.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Map returns a nested object, or nil when missing / null / not an object
func (p Payload) Map(key string) Payload {
	return asPayload(p[key])
}

// Maps returns a nested list of objects, skipping non-object entries
func (p Payload) Maps(key string) []Payload {
	switch list := p[key].(type) {
	case []Payload:
		return list
	case []map[string]any:
		out := make([]Payload, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out
	case []any:
		out := make([]Payload, 0, len(list))
		for _, raw := range list {
			if m := asPayload(raw); m != nil {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func (p Payload) List(key string) []any {
	list, _ := p[key].([]any)
	return list
}

// Time parses an ISO8601 timestamp; missing or invalid yields the zero time
func (p Payload) Time(key string) time.Time {
	s, ok := p[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NullableTime is the timestamp variant of NullableString
func (p Payload) NullableTime(key string, def *time.Time) *time.Time {
	v, ok := p[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func asPayload(v any) Payload {
	switch m := v.(type) {
	case Payload:
		return m
	case map[string]any:
		return m
	default:
		return nil
	}
}

func idOf(v any) (uint64, bool) {
	switch id := v.(type) {
	case string:
		n, err := snowflake.Parse(id)
		return n, err == nil
	case json.Number:
		// Only accept the literal digits, never a float rendering
		n, err := snowflake.Parse(id.String())
		return n, err == nil
	case uint64:
		return id, true
	case int:
		if id < 0 {
			return 0, false
		}
		return uint64(id), true
	default:
		return 0, false
	}
}

func uintOf(v any) (uint64, bool) {
	switch n := v.(type) {
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		return u, err == nil
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case float64:
		if n < 0 || n != math.Trunc(n) || n >= math.MaxUint64 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}
