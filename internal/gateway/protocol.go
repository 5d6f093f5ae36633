package gateway

import (
	"encoding/json"

	"github.com/soyeahso/depot/internal/hooks"
)

// Frame types on the event stream.
const (
	FrameTypeHello = "hello"
	FrameTypeEvent = "event"
)

// Frame is the envelope for every message written to /ws/events.
type Frame struct {
	Type string `json:"type"`

	// Hello fields
	ConnID  string   `json:"connId,omitempty"`
	Version string   `json:"version,omitempty"`
	Events  []string `json:"events,omitempty"`

	// Event fields
	Event   string          `json:"event,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewHello creates the first frame sent on a new stream.
func NewHello(connID, version string) Frame {
	return Frame{
		Type:    FrameTypeHello,
		ConnID:  connID,
		Version: version,
		Events:  hooks.AllEvents,
	}
}

// NewEvent creates an event frame from a hook payload.
func NewEvent(p hooks.Payload) (Frame, error) {
	data := p.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   p.Event,
		Seq:     p.Seq,
		Payload: raw,
	}, nil
}
