package bus

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Lifecycle and stats notifications exchanged with an embedded game.
const (
	TypeGameClosing   = "GAME_CLOSING"
	TypeGameStatus    = "GAME_STATUS"
	TypeGameCompleted = "GAME_COMPLETED"
)

var ErrDecode = errors.New("malformed message")

// Kind names the wire types of one request/response pair.
type Kind struct {
	Request  string
	Resolved string
	Failed   string
	// Aliases are older request type names routed to the same handler.
	Aliases []string
}

// KindFor derives the conventional NAME_REQUESTED / NAME_RESOLVED / NAME_FAILED triple.
func KindFor(name string) Kind {
	return Kind{Request: name + "_REQUESTED", Resolved: name + "_RESOLVED", Failed: name + "_FAILED"}
}

var (
	GenerateQuestions = Kind{
		Request:  "GENERATE_QUESTIONS_REQUESTED",
		Resolved: "QUESTIONS_GENERATED",
		Failed:   "QUESTIONS_ERROR",
		Aliases:  []string{"GENERATE_QUESTIONS"},
	}
	// RequestLLM answers success and failure with the same type; a non-empty
	// error field marks the failure.
	RequestLLM = Kind{
		Request:  "REQUEST_LLM_REQUESTED",
		Resolved: "LLM_RESPONSE",
		Failed:   "LLM_RESPONSE",
		Aliases:  []string{"REQUEST_LLM"},
	}
)

func (k Kind) answeredBy(typ string) bool {
	return typ == k.Resolved || typ == k.Failed
}

func (k Kind) isFailure(m Message) bool {
	if k.Failed == k.Resolved {
		return m.Error != ""
	}
	return m.Type == k.Failed
}

// Message is a decoded envelope. Payload fields stay in the raw object and are
// read with Bind.
type Message struct {
	Type      string
	RequestID string
	Error     string
	raw       json.RawMessage
}

type header struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Error     string `json:"error"`
}

// Decode parses a flat wire object. Anything that is not a JSON object with a
// string type tag is an ErrDecode.
func Decode(data []byte) (Message, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if h.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrDecode)
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Message{Type: h.Type, RequestID: h.RequestID, Error: h.Error, raw: raw}, nil
}

// Bind decodes the message's fields into v.
func (m Message) Bind(v any) error {
	if len(m.raw) == 0 {
		return fmt.Errorf("%w: empty message", ErrDecode)
	}
	return json.Unmarshal(m.raw, v)
}

func (m Message) Raw() json.RawMessage { return m.raw }

// Encode flattens payload into a wire object tagged with typ and requestID.
// The payload must encode to a JSON object (or be nil).
func Encode(typ, requestID string, payload any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		if string(b) != "null" {
			if err := json.Unmarshal(b, &fields); err != nil {
				return nil, fmt.Errorf("encode %s payload: not an object: %w", typ, err)
			}
		}
	}
	t, _ := json.Marshal(typ)
	fields["type"] = t
	if requestID != "" {
		id, _ := json.Marshal(requestID)
		fields["requestId"] = id
	} else {
		delete(fields, "requestId")
	}
	return json.Marshal(fields)
}

type failure struct {
	Error string `json:"error"`
}
