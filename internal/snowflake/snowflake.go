package snowflake

import (
	"errors"
	"strconv"
	"time"
)

// Epoch is the Discord epoch (2015-01-01T00:00:00Z) in Unix milliseconds
const Epoch = 1420070400000

// timestampShift is the number of low bits holding worker, process and increment
const timestampShift = 22

var ErrInvalid = errors.New("snowflake: invalid id")

// Parse converts a wire ID to uint64.
// IDs arrive as base-10 strings; a 0x prefix selects base-16.
func Parse(s string) (uint64, error) {
	if s == "" {
		return 0, ErrInvalid
	}

	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		id, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, ErrInvalid
		}
		return id, nil
	}

	// Fast path: manual digit loop, falls back to strconv for overflow detection
	if len(s) < 20 {
		var id uint64
		for i := 0; i < len(s); i++ {
			c := s[i]
			if c < '0' || c > '9' {
				return 0, ErrInvalid
			}
			id = id*10 + uint64(c-'0')
		}
		return id, nil
	}

	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ErrInvalid
	}
	return id, nil
}

// MustParse is Parse for constants in tests and fixtures
func MustParse(s string) uint64 {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Format renders an ID the way the wire sends it
func Format(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// CreatedAt derives the creation time embedded in the ID
func CreatedAt(id uint64) time.Time {
	return time.UnixMilli(int64(id>>timestampShift) + Epoch).UTC()
}

// FromTime returns the lowest ID that could have been created at t.
// Useful as a `before`/`after` cursor.
func FromTime(t time.Time) uint64 {
	ms := t.UnixMilli() - Epoch
	if ms <= 0 {
		return 0
	}
	return uint64(ms) << timestampShift
}
