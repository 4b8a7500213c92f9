package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const (
	// Platform limits. Uploads above these fail up front with
	// ErrMediaTooLarge, never as a truncated upload.
	MaxImageSize    = 5 * 1024 * 1024
	MaxDocumentSize = 100 * 1024 * 1024
)

var ErrMediaTooLarge = errors.New("media exceeds platform size limit")

// UploadMedia pushes media bytes to the platform and returns the media id to
// reference in a later send. Media sends are two-phase: upload, then send.
func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	limit := int64(MaxDocumentSize)
	if strings.HasPrefix(mimeType, "image/") {
		limit = MaxImageSize
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: %d bytes (%s)", ErrMediaTooLarge, len(data), mimeType)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", err
	}
	if err := writer.WriteField("type", mimeType); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/%s/media",
		strings.TrimRight(c.config.BaseURL, "/"), c.config.PhoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("whatsapp media upload failed: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp media upload failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whatsapp media upload failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("whatsapp media upload returned %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse media upload response: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("media upload response missing id")
	}
	return out.ID, nil
}

// DownloadMedia fetches inbound media bytes. The platform serves media in two
// steps: resolve the media id to a short-lived URL, then fetch that URL with
// the same bearer token.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(c.config.BaseURL, "/"), mediaID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp media download failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp media download failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp media download failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("whatsapp media lookup returned %d: %s", resp.StatusCode, string(body))
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, "", fmt.Errorf("failed to parse media lookup response: %w", err)
	}
	if meta.URL == "" {
		return nil, "", errors.New("media lookup response missing url")
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp media download failed: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	dlResp, err := c.httpClient.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp media download failed: %w", err)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode < 200 || dlResp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("whatsapp media fetch returned %d", dlResp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(dlResp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp media download failed: %w", err)
	}
	if int64(len(data)) > MaxDocumentSize {
		return nil, "", ErrMediaTooLarge
	}
	return data, meta.MimeType, nil
}
