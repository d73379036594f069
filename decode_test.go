package agentwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataLine(t *testing.T) {
	d := NewDecoder(nil)
	ev, ok := d.Decode(`data: {"eventType":"text_content","eventData":{"content":"Hi"}}`)
	require.True(t, ok)
	text, ok := ev.(*TextContentEvent)
	require.True(t, ok)
	assert.Equal(t, "Hi", text.Content)
}

func TestDecodeBarePayload(t *testing.T) {
	// Lines arriving through an SSE decoder have the prefix stripped already.
	d := NewDecoder(nil)
	ev, ok := d.Decode(`{"eventType":"action_start","eventData":{"id":"a1","name":"foo"}}`)
	require.True(t, ok)
	start, ok := ev.(*ActionStartEvent)
	require.True(t, ok)
	assert.Equal(t, "a1", start.ID)
	assert.Equal(t, "foo", start.Name)
}

func TestDecodeAltDiscriminator(t *testing.T) {
	d := NewDecoder(nil)
	ev, ok := d.Decode(`data: {"type":"text_end","eventData":{}}`)
	require.True(t, ok)
	assert.IsType(t, &TextEndEvent{}, ev)
}

func TestDecodeDoneSentinel(t *testing.T) {
	d := NewDecoder(nil)
	_, ok := d.Decode("data: [DONE]")
	assert.False(t, ok)
	assert.True(t, isDoneLine("data: [DONE]"))
	assert.True(t, isDoneLine("[DONE]"))
	assert.False(t, isDoneLine(`data: {"eventType":"heartbeat"}`))
	assert.Zero(t, d.Warnings())
}

func TestDecodeNeverErrors(t *testing.T) {
	d := NewDecoder(nil)
	for _, line := range []string{
		"data: {not json",
		`data: {"eventType":"mystery_event","eventData":{}}`,
		`data: {"eventType":"text_content","eventData":"not an object"}`,
	} {
		_, ok := d.Decode(line)
		assert.False(t, ok, "line %q should be dropped", line)
	}
	assert.Equal(t, 3, d.Warnings())

	// Blank and comment lines are skipped without counting as warnings.
	warnings := d.Warnings()
	_, ok := d.Decode("")
	assert.False(t, ok)
	_, ok = d.Decode(": keepalive")
	assert.False(t, ok)
	assert.Equal(t, warnings, d.Warnings())
}

func TestDecodeSessionStart(t *testing.T) {
	d := NewDecoder(nil)
	ev, ok := d.Decode(`data: {"eventType":"session_start","eventData":{"threadId":"t1","runId":"r1"}}`)
	require.True(t, ok)
	start := ev.(*SessionStartEvent)
	assert.Equal(t, "t1", start.ThreadID)
	assert.Equal(t, "r1", start.RunID)
}
