// Package fcm talks the legacy HTTP wire protocol of the push gateway and
// classifies its per-recipient delivery results.
//
// https://firebase.google.com/docs/cloud-messaging/http-server-ref
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultEndpoint is the standard gateway send URL.
const DefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

// Result is the delivery outcome for one recipient token, positionally
// aligned with the request's recipient list.
type Result struct {
	MessageID      string `json:"message_id,omitempty"`
	RegistrationID string `json:"registration_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Response is the parsed gateway response body.
type Response struct {
	MulticastID  int64    `json:"multicast_id"`
	Success      int      `json:"success"`
	Failure      int      `json:"failure"`
	CanonicalIDs int      `json:"canonical_ids"`
	Results      []Result `json:"results"`
}

// Client is the synchronous gateway transport. Send blocks the calling
// goroutine; the dispatch worker is its only caller.
type Client struct {
	endpoint   string
	serverKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(endpoint, serverKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:  endpoint,
		serverKey: serverKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "FCMClient"),
	}
}

// Send posts the wire body and parses the gateway response.
//
// A returned error means the gateway could not be reached or its body could
// not be decoded; both are delivery errors distinct from a gateway-reported
// status. On 400 and 401 the body carries no results and is not parsed.
func (c *Client) Send(ctx context.Context, body []byte) (int, *Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("fcm: build request: %w", err)
	}
	req.Header.Set("Authorization", "key="+c.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("fcm: transport failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return resp.StatusCode, nil, nil
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("fcm: decode response (status %d): %w", resp.StatusCode, err)
	}

	c.logger.Debug("gateway response",
		"status", resp.StatusCode,
		"success", parsed.Success,
		"failure", parsed.Failure,
		"canonical_ids", parsed.CanonicalIDs,
	)
	return resp.StatusCode, &parsed, nil
}
