package protocol

import (
	"encoding/json"
	"fmt"
)

// EventType is the "type" discriminator of realtime data-channel messages.
type EventType string

// Outbound (client -> agent).
const (
	TypeSessionUpdate          EventType = "session.update"
	TypeResponseCreate         EventType = "response.create"
	TypeConversationItemCreate EventType = "conversation.item.create"
)

// Inbound (agent -> client).
const (
	TypeSessionUpdated          EventType = "session.updated"
	TypeConversationItemCreated EventType = "conversation.item.created"
	TypeOutputAudioStarted      EventType = "output_audio_buffer.started"
	TypeOutputAudioStopped      EventType = "output_audio_buffer.stopped"
	TypeTranscriptDelta         EventType = "response.audio_transcript.delta"
	TypeError                   EventType = "error"
)

// Modalities requested for every interviewer turn.
var ResponseModalities = []string{"text", "audio"}

type Envelope struct {
	Type EventType `json:"type"`
}

// ServerEvent is one of the inbound variants returned by ParseServerEvent.
type ServerEvent interface {
	EventType() EventType
	isServerEvent()
}

type SessionUpdated struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id,omitempty"`
}

type ConversationItemCreated struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id,omitempty"`
	Item    struct {
		ID   string `json:"id,omitempty"`
		Role string `json:"role,omitempty"`
	} `json:"item"`
}

type OutputAudioStarted struct {
	Type       EventType `json:"type"`
	ResponseID string    `json:"response_id,omitempty"`
}

type OutputAudioStopped struct {
	Type       EventType `json:"type"`
	ResponseID string    `json:"response_id,omitempty"`
}

type TranscriptDelta struct {
	Type       EventType `json:"type"`
	ResponseID string    `json:"response_id,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	Delta      string    `json:"delta"`
}

type ServerError struct {
	Type  EventType `json:"type"`
	Error struct {
		Type    string `json:"type,omitempty"`
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// Unknown carries any event type this client has no reaction for.
type Unknown struct {
	Type EventType
}

func (e SessionUpdated) EventType() EventType          { return TypeSessionUpdated }
func (e ConversationItemCreated) EventType() EventType { return TypeConversationItemCreated }
func (e OutputAudioStarted) EventType() EventType      { return TypeOutputAudioStarted }
func (e OutputAudioStopped) EventType() EventType      { return TypeOutputAudioStopped }
func (e TranscriptDelta) EventType() EventType         { return TypeTranscriptDelta }
func (e ServerError) EventType() EventType             { return TypeError }
func (e Unknown) EventType() EventType                 { return e.Type }

func (SessionUpdated) isServerEvent()          {}
func (ConversationItemCreated) isServerEvent() {}
func (OutputAudioStarted) isServerEvent()      {}
func (OutputAudioStopped) isServerEvent()      {}
func (TranscriptDelta) isServerEvent()         {}
func (ServerError) isServerEvent()             {}
func (Unknown) isServerEvent()                 {}

// ParseServerEvent decodes one inbound message. Invalid JSON is an error;
// unrecognized types decode to Unknown. Recognized events are classified by
// type alone: other fields are read when they have the expected shape and
// left empty otherwise.
func ParseServerEvent(raw []byte) (ServerEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	var typ EventType
	if t, ok := fields["type"]; ok {
		if err := json.Unmarshal(t, &typ); err != nil {
			return nil, fmt.Errorf("invalid envelope: %w", err)
		}
	}

	switch typ {
	case TypeSessionUpdated:
		return SessionUpdated{Type: typ, EventID: str(fields, "event_id")}, nil
	case TypeConversationItemCreated:
		e := ConversationItemCreated{Type: typ, EventID: str(fields, "event_id")}
		item := object(fields["item"])
		e.Item.ID = str(item, "id")
		e.Item.Role = str(item, "role")
		return e, nil
	case TypeOutputAudioStarted:
		return OutputAudioStarted{Type: typ, ResponseID: str(fields, "response_id")}, nil
	case TypeOutputAudioStopped:
		return OutputAudioStopped{Type: typ, ResponseID: str(fields, "response_id")}, nil
	case TypeTranscriptDelta:
		return TranscriptDelta{
			Type:       typ,
			ResponseID: str(fields, "response_id"),
			ItemID:     str(fields, "item_id"),
			Delta:      str(fields, "delta"),
		}, nil
	case TypeError:
		e := ServerError{Type: typ}
		detail := object(fields["error"])
		e.Error.Type = str(detail, "type")
		e.Error.Code = str(detail, "code")
		e.Error.Message = str(detail, "message")
		return e, nil
	default:
		return Unknown{Type: typ}, nil
	}
}

// str returns the string at key, or "" when it is absent or not a string.
func str(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func object(raw json.RawMessage) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

type SessionUpdate struct {
	Type    EventType     `json:"type"`
	Session SessionConfig `json:"session"`
}

type SessionConfig struct {
	Instructions string `json:"instructions"`
	Voice        string `json:"voice"`
}

type ResponseCreate struct {
	Type     EventType      `json:"type"`
	Response ResponseConfig `json:"response"`
}

type ResponseConfig struct {
	Modalities []string `json:"modalities"`
}

type ConversationItemCreate struct {
	Type EventType        `json:"type"`
	Item ConversationItem `json:"item"`
}

type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewSessionUpdate(voice, instructions string) SessionUpdate {
	return SessionUpdate{
		Type:    TypeSessionUpdate,
		Session: SessionConfig{Instructions: instructions, Voice: voice},
	}
}

func NewResponseCreate() ResponseCreate {
	modalities := make([]string, len(ResponseModalities))
	copy(modalities, ResponseModalities)
	return ResponseCreate{
		Type:     TypeResponseCreate,
		Response: ResponseConfig{Modalities: modalities},
	}
}

func NewUserMessage(text string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}
