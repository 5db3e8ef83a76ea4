package model

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Marker tags entries this relay owns inside a host conversation.
type Marker string

const (
	MarkerNone    Marker = ""
	MarkerAmbient Marker = "context_relay.ambient"
	MarkerEvent   Marker = "context_relay.event"
)

// MessageMeta is the extra data attached to relay-owned conversation entries.
type MessageMeta struct {
	Marker  Marker `json:"marker,omitempty"`
	Action  Action `json:"action,omitempty"`
	EventID string `json:"eventId,omitempty"`
}

// Message is one role-tagged entry of a host conversation.
type Message struct {
	Role Role        `json:"role"`
	Name string      `json:"name,omitempty"`
	Text string      `json:"text"`
	Meta MessageMeta `json:"meta"`
}

// Messages is a slice backed conversation, the simplest host sequence.
type Messages []Message

func (m *Messages) Len() int { return len(*m) }

func (m *Messages) At(i int) Message { return (*m)[i] }

func (m *Messages) Insert(i int, msg Message) {
	*m = append(*m, Message{})
	copy((*m)[i+1:], (*m)[i:])
	(*m)[i] = msg
}

func (m *Messages) Replace(i int, msg Message) { (*m)[i] = msg }

func (m *Messages) Append(msg Message) { *m = append(*m, msg) }
