package whatsapp

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrNotBusinessAccount = errors.New("envelope is not a whatsapp business account event")

// ParseWebhook normalizes a webhook POST envelope into inbound events, one
// per message or status. The parser is tolerant: malformed sub-entries are
// skipped with logged context and the remaining entries are still processed.
func ParseWebhook(body []byte) ([]InboundEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Object != "whatsapp_business_account" {
		return nil, ErrNotBusinessAccount
	}

	var events []InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			name := profileName(value.Contacts)

			for _, msg := range value.Messages {
				ev, ok := parseMessage(msg, name)
				if !ok {
					log.Warn().
						Str("message_id", msg.ID).
						Str("type", msg.Type).
						Msg("Skipping malformed webhook message")
					continue
				}
				events = append(events, ev)
			}

			for _, st := range value.Statuses {
				status := st
				events = append(events, InboundEvent{
					Type:      EventStatusUpdate,
					MessageID: st.ID,
					From:      st.RecipientID,
					Timestamp: parseTimestamp(st.Timestamp),
					Status:    &status,
				})
			}
		}
	}
	return events, nil
}

func parseMessage(msg Message, profile string) (InboundEvent, bool) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return InboundEvent{}, false
	}

	ev := InboundEvent{
		MessageID:   msg.ID,
		From:        msg.From,
		ProfileName: profile,
		Timestamp:   parseTimestamp(msg.Timestamp),
		Raw:         raw,
	}
	if msg.ID == "" || msg.From == "" {
		return InboundEvent{}, false
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return InboundEvent{}, false
		}
		ev.Type = EventText
		ev.Text = msg.Text.Body

	case "image", "audio", "video", "document":
		ref := msg.Image
		kind := MediaImage
		switch msg.Type {
		case "audio":
			ref, kind = msg.Audio, MediaAudio
		case "video":
			ref, kind = msg.Video, MediaVideo
		case "document":
			ref, kind = msg.Document, MediaDocument
		}
		if ref == nil {
			return InboundEvent{}, false
		}
		ev.Type = EventMedia
		ev.Media = &MediaEvent{
			Kind:     kind,
			MediaID:  ref.ID,
			MimeType: ref.MimeType,
			Caption:  ref.Caption,
			Filename: ref.Filename,
		}

	case "interactive":
		if msg.Interactive == nil {
			return InboundEvent{}, false
		}
		switch {
		case msg.Interactive.ButtonReply != nil:
			ev.Type = EventButtonReply
			ev.Button = msg.Interactive.ButtonReply
		case msg.Interactive.ListReply != nil:
			ev.Type = EventListReply
			ev.List = msg.Interactive.ListReply
		case msg.Interactive.NFMReply != nil:
			ev.Type = EventFlowSubmission
			ev.Flow = parseFlowSubmission(msg.Interactive.NFMReply, msg.ID)
		default:
			ev.Type = EventUnsupported
			ev.RawType = "interactive:" + msg.Interactive.Type
		}

	default:
		// Unknown types are surfaced, not dropped, so callers can reply
		// with an "unsupported message" notice.
		ev.Type = EventUnsupported
		ev.RawType = msg.Type
	}

	return ev, true
}

func parseFlowSubmission(reply *NFMReply, messageID string) *FlowSubmission {
	sub := &FlowSubmission{
		Name:     reply.Name,
		Body:     reply.Body,
		Response: map[string]any{},
	}
	if reply.ResponseJSON != "" {
		if err := json.Unmarshal([]byte(reply.ResponseJSON), &sub.Response); err != nil {
			log.Warn().
				Str("message_id", messageID).
				Err(err).
				Msg("Flow response_json did not parse, continuing with empty payload")
			sub.Response = map[string]any{}
		}
	}
	if token, ok := sub.Response["flow_token"].(string); ok {
		sub.FlowToken = token
	}
	return sub
}

func parseTimestamp(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func profileName(contacts []Contact) string {
	if len(contacts) > 0 {
		return contacts[0].Profile.Name
	}
	return ""
}
