package payload

import (
	"github.com/tidwall/gjson"
)

// OpDispatch is the gateway opcode carrying events
const OpDispatch = 0

// Frame is one gateway frame with the dispatch body decoded
type Frame struct {
	Op       int
	Sequence int64
	Type     string
	Data     Payload
}

// ParseFrame peeks op/s/t with gjson and only decodes `d` for dispatch frames.
// Non-dispatch frames come back with a nil Data.
func ParseFrame(data []byte) (Frame, error) {
	if !gjson.ValidBytes(data) {
		return Frame{}, ErrMalformed
	}

	fields := gjson.GetManyBytes(data, "op", "s", "t", "d")
	if !fields[0].Exists() {
		return Frame{}, ErrMalformed
	}

	frame := Frame{
		Op:       int(fields[0].Int()),
		Sequence: fields[1].Int(),
		Type:     fields[2].String(),
	}
	if frame.Op != OpDispatch {
		return frame, nil
	}

	d := fields[3]
	if !d.IsObject() {
		return frame, ErrMalformed
	}

	body, err := Decode([]byte(d.Raw))
	if err != nil {
		return frame, err
	}
	frame.Data = body
	return frame, nil
}

// PeekType returns the event name of a raw frame without decoding it
func PeekType(data []byte) string {
	return gjson.GetBytes(data, "t").String()
}
