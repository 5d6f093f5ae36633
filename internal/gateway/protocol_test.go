package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/soyeahso/depot/internal/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventFrame(t *testing.T) {
	f, err := NewEvent(hooks.Payload{
		Event: hooks.EventPluginRemoved,
		Seq:   7,
		Time:  time.Now(),
		Data:  map[string]any{"kind": "distributor", "name": "rsync"},
	})
	require.NoError(t, err)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"event","event":"plugin_removed","seq":7,"payload":{"kind":"distributor","name":"rsync"}}`, string(data))
}

func TestNewEventFrameNilData(t *testing.T) {
	f, err := NewEvent(hooks.Payload{Event: hooks.EventServerStop, Seq: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(f.Payload))
}

func TestNewHello(t *testing.T) {
	f := NewHello("conn-1", "1.2.3")
	assert.Equal(t, FrameTypeHello, f.Type)
	assert.Equal(t, "conn-1", f.ConnID)
	assert.Equal(t, hooks.AllEvents, f.Events)
	assert.Empty(t, f.Event)
}
