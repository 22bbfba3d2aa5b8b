package payload

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeepsLargeIDs(t *testing.T) {
	t.Parallel()

	p, err := Decode([]byte(`{"id":"175928847299117063","num_id":175928847299117063,"count":3,"nested":{"a":"b"}}`))
	require.NoError(t, err)

	assert.Equal(t, uint64(175928847299117063), p.ID("id"))
	// Numeric IDs survive because UseNumber keeps the literal
	assert.Equal(t, uint64(175928847299117063), p.ID("num_id"))
	assert.Equal(t, 3, p.Int("count", 0))
	assert.Equal(t, "b", p.Map("nested").String("a", ""))
}

func TestDecodeRejectsNonObject(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`null`))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`[1,2]`))
	require.Error(t, err)
}

func TestAccessorDefaults(t *testing.T) {
	t.Parallel()

	p := Payload{
		"name":  "general",
		"nsfw":  true,
		"topic": nil,
		"bad":   12,
	}

	assert.Equal(t, "general", p.String("name", "x"))
	assert.Equal(t, "x", p.String("missing", "x"))
	assert.Equal(t, "x", p.String("bad", "x"))
	assert.True(t, p.Bool("nsfw", false))
	assert.Equal(t, 7, p.Int("missing", 7))
	assert.True(t, p.Has("topic"))
	assert.True(t, p.IsNull("topic"))
	assert.False(t, p.IsNull("missing"))
	assert.Zero(t, p.ID("missing"))
	assert.Nil(t, p.Map("name"))
}

func TestNullableString(t *testing.T) {
	t.Parallel()

	current := "old"
	p := Payload{"nick": nil, "state": "x"}

	assert.Nil(t, p.NullableString("nick", &current))
	assert.Equal(t, &current, p.NullableString("missing", &current))
	got := p.NullableString("state", nil)
	require.NotNil(t, got)
	assert.Equal(t, "x", *got)
}

func TestBits(t *testing.T) {
	t.Parallel()

	p := Payload{
		"permissions": "1099511627775",
		"flags":       Payload{}["none"],
		"number":      6,
		"bad":         "abc",
	}

	assert.Equal(t, uint64(1099511627775), p.Bits("permissions", 0))
	assert.Equal(t, uint64(9), p.Bits("flags", 9))
	assert.Equal(t, uint64(6), p.Bits("number", 0))
	assert.Equal(t, uint64(1), p.Bits("bad", 1))
}

func TestInt64Range(t *testing.T) {
	t.Parallel()

	p := Payload{
		"min":      float64(math.MinInt64),
		"too_big":  float64(math.MaxInt64),
		"too_low":  -1e19,
		"fraction": 1.5,
		"number":   json.Number("42"),
		"huge_id":  1e20,
	}

	n, ok := p.Int64("min")
	assert.True(t, ok)
	assert.Equal(t, int64(math.MinInt64), n)

	for _, key := range []string{"too_big", "too_low", "fraction", "missing"} {
		_, ok := p.Int64(key)
		assert.False(t, ok, key)
	}

	n, ok = p.Int64("number")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, uint64(7), p.Bits("huge_id", 7))
}

func TestIDsAndMaps(t *testing.T) {
	t.Parallel()

	p, err := Decode([]byte(`{"roles":["3","1","oops","0x2"],"list":[{"id":"1"},5,{"id":"2"}]}`))
	require.NoError(t, err)

	assert.Equal(t, []uint64{3, 1, 2}, p.IDs("roles"))
	maps := p.Maps("list")
	require.Len(t, maps, 2)
	assert.Equal(t, uint64(2), maps[1].ID("id"))
}

func TestTimes(t *testing.T) {
	t.Parallel()

	p := Payload{
		"edited_timestamp": "2024-05-01T10:00:00.000000+00:00",
		"bad":              "yesterday",
		"null":             nil,
	}

	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, p.Time("edited_timestamp").Equal(want))
	assert.True(t, p.Time("bad").IsZero())

	got := p.NullableTime("edited_timestamp", nil)
	require.NotNil(t, got)
	assert.True(t, got.Equal(want))
	assert.Nil(t, p.NullableTime("null", &want))
	assert.Equal(t, &want, p.NullableTime("missing", &want))
}

func TestParseFrame(t *testing.T) {
	t.Parallel()

	frame, err := ParseFrame([]byte(`{"op":0,"s":42,"t":"CHANNEL_CREATE","d":{"id":"123","name":"general","type":0}}`))
	require.NoError(t, err)
	assert.Equal(t, OpDispatch, frame.Op)
	assert.Equal(t, int64(42), frame.Sequence)
	assert.Equal(t, "CHANNEL_CREATE", frame.Type)
	assert.Equal(t, uint64(123), frame.Data.ID("id"))

	heartbeat, err := ParseFrame([]byte(`{"op":11}`))
	require.NoError(t, err)
	assert.Equal(t, 11, heartbeat.Op)
	assert.Nil(t, heartbeat.Data)

	_, err = ParseFrame([]byte(`{"op":0,"t":"X","d":"nope"}`))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = ParseFrame([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformed)

	assert.Equal(t, "MESSAGE_CREATE", PeekType([]byte(`{"t":"MESSAGE_CREATE","op":0}`)))
}
