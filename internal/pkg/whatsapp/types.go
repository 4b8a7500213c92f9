package whatsapp

import (
	"encoding/json"
	"time"
)

// Webhook envelope types for the WhatsApp Business Cloud API.

type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         Metadata        `json:"metadata"`
	Contacts         []Contact       `json:"contacts,omitempty"`
	Messages         []Message       `json:"messages,omitempty"`
	Statuses         []Status        `json:"statuses,omitempty"`
	FlowCompletion   json.RawMessage `json:"flow_completion,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	Profile ContactProfile `json:"profile"`
	WaID    string         `json:"wa_id"`
}

type ContactProfile struct {
	Name string `json:"name"`
}

// Message is one inbound message inside a webhook envelope.
type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *TextContent `json:"text,omitempty"`
	Image       *MediaRef    `json:"image,omitempty"`
	Audio       *MediaRef    `json:"audio,omitempty"`
	Video       *MediaRef    `json:"video,omitempty"`
	Document    *MediaRef    `json:"document,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

type TextContent struct {
	Body string `json:"body"`
}

type MediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type Interactive struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
	ListReply   *ListReply   `json:"list_reply,omitempty"`
	NFMReply    *NFMReply    `json:"nfm_reply,omitempty"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ListReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// NFMReply carries a flow submission; ResponseJSON is a JSON-encoded string.
type NFMReply struct {
	Name         string `json:"name"`
	Body         string `json:"body"`
	ResponseJSON string `json:"response_json"`
}

// Status is a delivery status update for an outbound message.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// Normalized inbound events.

type EventType string

const (
	EventText           EventType = "text"
	EventMedia          EventType = "media"
	EventButtonReply    EventType = "button_reply"
	EventListReply      EventType = "list_reply"
	EventFlowSubmission EventType = "flow_submission"
	EventStatusUpdate   EventType = "status_update"
	EventUnsupported    EventType = "unsupported"
)

// MediaKind distinguishes media events.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaAudio    MediaKind = "audio"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// InboundEvent is one normalized event produced by the webhook parser.
// Exactly one of the pointer fields matching Type is set.
type InboundEvent struct {
	Type        EventType
	MessageID   string
	From        string // sender phone as delivered by the platform
	ProfileName string
	Timestamp   time.Time
	Raw         json.RawMessage // original message for audit

	Text    string
	Media   *MediaEvent
	Button  *ButtonReply
	List    *ListReply
	Flow    *FlowSubmission
	Status  *Status
	RawType string // platform type for unsupported messages
}

type MediaEvent struct {
	Kind     MediaKind
	MediaID  string
	MimeType string
	Caption  string
	Filename string
}

// FlowSubmission is the terminal nfm_reply of a structured flow. Response
// holds the parsed response_json; parse failure leaves it empty rather than
// failing the event.
type FlowSubmission struct {
	Name      string
	Body      string
	Response  map[string]any
	FlowToken string
}
