package agentwire

import (
	"encoding/json"
	"log/slog"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// eventEnvelope is the wire frame around every event. Older backends send the
// discriminator as "type" instead of "eventType"; both are accepted.
type eventEnvelope struct {
	EventType EventType       `json:"eventType"`
	AltType   EventType       `json:"type"`
	EventData json.RawMessage `json:"eventData"`
}

// Decoder turns raw transport lines into typed stream events. It never
// returns an error: a malformed or unknown line is logged and dropped so a
// single bad frame cannot interrupt the stream.
type Decoder struct {
	logger   *slog.Logger
	warnings int
}

func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Warnings reports how many lines were dropped as undecodable.
func (d *Decoder) Warnings() int {
	return d.warnings
}

// Decode maps one line onto a stream event. ok is false for blank lines, the
// [DONE] sentinel, malformed JSON and unknown event types.
func (d *Decoder) Decode(line string) (StreamEvent, bool) {
	payload, ok := payloadOf(line)
	if !ok || payload == doneSentinel {
		return nil, false
	}

	var env eventEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		d.warn("malformed event json", "error", err)
		return nil, false
	}
	typ := env.EventType
	if typ == "" {
		typ = env.AltType
	}

	ev := newEvent(typ)
	if ev == nil {
		d.warn("unknown event type", "eventType", string(typ))
		return nil, false
	}
	if len(env.EventData) > 0 {
		if err := json.Unmarshal(env.EventData, ev); err != nil {
			d.warn("malformed event data", "eventType", string(typ), "error", err)
			return nil, false
		}
	}
	return ev, true
}

func (d *Decoder) warn(msg string, args ...any) {
	d.warnings++
	d.logger.Warn(msg, args...)
}

// isDoneLine reports whether the line is the stream-end sentinel frame.
func isDoneLine(line string) bool {
	payload, ok := payloadOf(line)
	return ok && payload == doneSentinel
}

// payloadOf strips the "data:" framing. Lines arriving from an SSE decoder
// have the prefix already removed, so a bare payload is accepted as-is.
func payloadOf(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if after, ok := strings.CutPrefix(line, dataPrefix); ok {
		line = strings.TrimPrefix(after, " ")
	}
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	return line, true
}

func newEvent(typ EventType) StreamEvent {
	switch typ {
	case EventSessionStart:
		return &SessionStartEvent{}
	case EventSessionEnd:
		return &SessionEndEvent{}
	case EventTextContent:
		return &TextContentEvent{}
	case EventTextEnd:
		return &TextEndEvent{}
	case EventActionStart:
		return &ActionStartEvent{}
	case EventActionArgs:
		return &ActionArgsEvent{}
	case EventActionEnd:
		return &ActionEndEvent{}
	case EventActionResult:
		return &ActionResultEvent{}
	case EventAgentState:
		return &AgentStateEvent{}
	case EventError:
		return &ErrorEvent{}
	case EventHeartbeat:
		return &HeartbeatEvent{}
	default:
		return nil
	}
}
