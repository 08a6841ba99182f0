package chat

import (
	"encoding/json"
	"fmt"
)

// EventMessage is the only event carried over the push channel.
const EventMessage = "message"

// Frame is one websocket text frame. Outbound emissions carry positional
// Args (body, from); deliveries from the relay carry Data.
type Frame struct {
	Event string       `json:"event"`
	Args  []string     `json:"args,omitempty"`
	Data  *LiveMessage `json:"data,omitempty"`
}

func NewEmitFrame(body, from string) Frame {
	return Frame{Event: EventMessage, Args: []string{body, from}}
}

func NewDeliveryFrame(m LiveMessage) Frame {
	return Frame{Event: EventMessage, Data: &m}
}

// DecodeFrame parses one text frame. Undecodable input yields ErrMalformedFrame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return f, nil
}

// Message decodes the message carried by a frame in either form.
func (f Frame) Message() (LiveMessage, error) {
	if f.Event != EventMessage {
		return LiveMessage{}, fmt.Errorf("%w: unexpected event %q", ErrMalformedFrame, f.Event)
	}
	if f.Data != nil {
		return *f.Data, nil
	}
	if len(f.Args) >= 2 {
		return LiveMessage{Body: f.Args[0], From: f.Args[1]}, nil
	}
	return LiveMessage{}, fmt.Errorf("%w: message event without payload", ErrMalformedFrame)
}
