package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds WhatsApp Cloud API configuration.
type Config struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
}

// Client calls the WhatsApp Cloud API.
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a WhatsApp Cloud API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// SendResponse is the platform's reply to a message send.
type SendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the id of the first accepted message.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// Button is an interactive reply button.
type Button struct {
	ID    string
	Title string
}

// ListRow is one selectable row of a list prompt.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups list rows under a title.
type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

// FlowInvitation asks the platform to render a structured flow.
type FlowInvitation struct {
	FlowID        string
	FlowToken     string
	InitialScreen string
	CTA           string
	Header        string
	Body          string
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	return c.sendMessage(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
}

// SendButtons sends a button prompt with up to three reply buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button) (*SendResponse, error) {
	var btns []map[string]any
	for _, b := range buttons {
		btns = append(btns, map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": b.Title},
		})
	}
	return c.sendMessage(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": body},
			"action": map[string]any{"buttons": btns},
		},
	})
}

// SendList sends a list prompt.
func (c *Client) SendList(ctx context.Context, to, body, buttonText string, sections []ListSection) (*SendResponse, error) {
	return c.sendMessage(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "list",
			"body":   map[string]string{"text": body},
			"action": map[string]any{"button": buttonText, "sections": sections},
		},
	})
}

// SendFlow sends a flow invitation. The declared first screen must equal the
// first screen of the published flow definition or the platform rejects the
// render.
func (c *Client) SendFlow(ctx context.Context, to string, inv FlowInvitation) (*SendResponse, error) {
	interactive := map[string]any{
		"type": "flow",
		"body": map[string]string{"text": inv.Body},
		"action": map[string]any{
			"name": "flow",
			"parameters": map[string]any{
				"flow_message_version": "3",
				"flow_id":              inv.FlowID,
				"flow_token":           inv.FlowToken,
				"flow_cta":             inv.CTA,
				"flow_action":          "navigate",
				"flow_action_payload":  map[string]string{"screen": inv.InitialScreen},
			},
		},
	}
	if inv.Header != "" {
		interactive["header"] = map[string]string{"type": "text", "text": inv.Header}
	}
	return c.sendMessage(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "interactive",
		"interactive":       interactive,
	})
}

// SendImage sends a previously uploaded image by media id.
func (c *Client) SendImage(ctx context.Context, to, mediaID, caption string) (*SendResponse, error) {
	image := map[string]string{"id": mediaID}
	if caption != "" {
		image["caption"] = caption
	}
	return c.sendMessage(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "image",
		"image":             image,
	})
}

// SendDocument sends a previously uploaded document by media id.
func (c *Client) SendDocument(ctx context.Context, to, mediaID, filename string) (*SendResponse, error) {
	return c.sendMessage(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "document",
		"document":          map[string]string{"id": mediaID, "filename": filename},
	})
}

// MarkRead marks an inbound message read and shows a typing indicator bound
// to it. The platform dismisses the indicator on the next send or after 25s.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	_, err := c.sendMessage(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
		"typing_indicator":  map[string]string{"type": "text"},
	})
	return err
}

// UploadPublicKey uploads the business public key used for flow encryption.
// The endpoint is form-encoded, unlike the JSON message endpoints.
func (c *Client) UploadPublicKey(ctx context.Context, publicKeyPEM string) error {
	form := url.Values{}
	form.Set("business_public_key", publicKeyPEM)

	endpoint := fmt.Sprintf("%s/%s/whatsapp_business_encryption",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.PhoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("whatsapp api call failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp public key upload returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) sendMessage(ctx context.Context, payload map[string]any) (*SendResponse, error) {
	if strings.TrimSpace(c.config.BaseURL) == "" {
		return nil, fmt.Errorf("whatsapp config error: base_url is empty")
	}
	if strings.TrimSpace(c.config.PhoneNumberID) == "" {
		return nil, fmt.Errorf("whatsapp config error: phone_number_id is empty")
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode whatsapp request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.PhoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("whatsapp api call failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp api call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp api call failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whatsapp api returned non-2xx status: %d, body: %s", resp.StatusCode, string(body))
	}

	var out SendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse whatsapp response: %w", err)
	}
	return &out, nil
}
