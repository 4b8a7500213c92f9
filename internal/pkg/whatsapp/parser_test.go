package whatsapp

import (
	"errors"
	"testing"
)

const mixedEnvelope = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "entry-1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550000000", "phone_number_id": "pnid"},
        "contacts": [{"profile": {"name": "Ada"}, "wa_id": "2348012345678"}],
        "messages": [
          {"from": "2348012345678", "id": "wamid.1", "timestamp": "1700000000", "type": "text", "text": {"body": "balance"}},
          {"from": "2348012345678", "id": "wamid.2", "timestamp": "1700000001", "type": "reaction"},
          {"from": "2348012345678", "id": "wamid.3", "timestamp": "1700000002", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "confirm_yes", "title": "Yes"}}}
        ],
        "statuses": [
          {"id": "wamid.out", "status": "delivered", "timestamp": "1700000003", "recipient_id": "2348012345678"}
        ]
      }
    }]
  }]
}`

func TestParseWebhookMixedEnvelope(t *testing.T) {
	events, err := ParseWebhook([]byte(mixedEnvelope))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	if events[0].Type != EventText || events[0].Text != "balance" {
		t.Errorf("event 0: got %+v", events[0])
	}
	if events[0].ProfileName != "Ada" {
		t.Errorf("expected profile name Ada, got %q", events[0].ProfileName)
	}
	if events[1].Type != EventUnsupported || events[1].RawType != "reaction" {
		t.Errorf("event 1: expected unsupported reaction, got %+v", events[1])
	}
	if events[2].Type != EventButtonReply || events[2].Button.ID != "confirm_yes" {
		t.Errorf("event 2: got %+v", events[2])
	}
	if events[3].Type != EventStatusUpdate || events[3].Status.Status != "delivered" {
		t.Errorf("event 3: got %+v", events[3])
	}
}

func TestParseWebhookIsDeterministic(t *testing.T) {
	first, err := ParseWebhook([]byte(mixedEnvelope))
	if err != nil {
		t.Fatal(err)
	}
	second, err := ParseWebhook([]byte(mixedEnvelope))
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("parse not deterministic: %d vs %d events", len(first), len(second))
	}
	for i := range first {
		if first[i].Type != second[i].Type || first[i].MessageID != second[i].MessageID {
			t.Errorf("event %d differs between parses", i)
		}
	}
}

func TestParseWebhookSkipsMalformedSiblings(t *testing.T) {
	envelope := `{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {"messages": [
	    {"from": "", "id": "", "type": "text", "text": {"body": "broken"}},
	    {"from": "2348012345678", "id": "wamid.ok", "timestamp": "1700000000", "type": "text", "text": {"body": "hi"}}
	  ]}}]}]
	}`
	events, err := ParseWebhook([]byte(envelope))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected the well-formed sibling to survive, got %d events", len(events))
	}
	if events[0].MessageID != "wamid.ok" {
		t.Errorf("wrong survivor: %+v", events[0])
	}
}

func TestParseWebhookFlowSubmission(t *testing.T) {
	envelope := `{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {"messages": [
	    {"from": "2348012345678", "id": "wamid.flow", "timestamp": "1700000000", "type": "interactive",
	     "interactive": {"type": "nfm_reply", "nfm_reply": {
	       "name": "flow", "body": "Sent",
	       "response_json": "{\"flow_token\":\"tok123\",\"pin\":\"1234\"}"
	     }}}
	  ]}}]}]
	}`
	events, err := ParseWebhook([]byte(envelope))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != EventFlowSubmission {
		t.Fatalf("expected one flow submission, got %+v", events)
	}
	sub := events[0].Flow
	if sub.FlowToken != "tok123" {
		t.Errorf("flow token = %q", sub.FlowToken)
	}
	if sub.Response["pin"] != "1234" {
		t.Errorf("response payload missing pin: %+v", sub.Response)
	}
}

func TestParseWebhookBadResponseJSONIsNotFatal(t *testing.T) {
	envelope := `{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {"messages": [
	    {"from": "2348012345678", "id": "wamid.flow", "timestamp": "1700000000", "type": "interactive",
	     "interactive": {"type": "nfm_reply", "nfm_reply": {"name": "flow", "body": "Sent", "response_json": "{broken"}}}
	  ]}}]}]
	}`
	events, err := ParseWebhook([]byte(envelope))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != EventFlowSubmission {
		t.Fatalf("expected flow submission event, got %+v", events)
	}
	if len(events[0].Flow.Response) != 0 {
		t.Errorf("expected empty response payload, got %+v", events[0].Flow.Response)
	}
}

func TestParseWebhookRejectsForeignObject(t *testing.T) {
	_, err := ParseWebhook([]byte(`{"object": "page", "entry": []}`))
	if !errors.Is(err, ErrNotBusinessAccount) {
		t.Fatalf("expected ErrNotBusinessAccount, got %v", err)
	}
}
