// Package tokens implements the HTTP client for the WaveLink call API,
// which registers outgoing calls and mints per-channel media tokens.
package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wavelink/wavelink/internal/call"
)

// startRequest is the payload for POST /calls/start.
type startRequest struct {
	RecipientID string `json:"recipientId"`
	Kind        string `json:"kind"`
	ChannelID   string `json:"channelId"`
}

// startResponse is the data returned by POST /calls/start. The server may
// substitute its own channel ID for the proposed one.
type startResponse struct {
	ChannelID  string `json:"channelId"`
	MediaToken string `json:"mediaToken"`
}

// tokenRequest is the payload for POST /calls/token.
type tokenRequest struct {
	ChannelID string `json:"channelId"`
	LocalID   string `json:"localId"`
}

// tokenResponse is the data returned by POST /calls/token.
type tokenResponse struct {
	MediaToken string `json:"mediaToken"`
}

// envelope is the standard WaveLink API response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Client talks to the WaveLink call API. It implements call.TokenService.
// Requests carry the account bearer token and are never retried; a failed
// token fetch surfaces to the user as a failed call attempt.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
}

// NewClient creates a call API client. baseURL is the API endpoint (e.g.
// "https://api.wavelink.example"); authToken is the account bearer
// credential sent with each request.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		authToken:  authToken,
	}
}

var _ call.TokenService = (*Client)(nil)

// StartCall registers a proposed call with the server and returns the
// authoritative channel ID plus the media token for it.
func (c *Client) StartCall(ctx context.Context, channelID, recipientID string, kind call.Kind) (string, string, error) {
	req := startRequest{
		RecipientID: recipientID,
		Kind:        string(kind),
		ChannelID:   channelID,
	}
	var resp startResponse
	if err := c.post(ctx, "/calls/start", req, &resp); err != nil {
		return "", "", err
	}
	if resp.MediaToken == "" {
		return "", "", fmt.Errorf("tokens: server returned no media token")
	}
	return resp.ChannelID, resp.MediaToken, nil
}

// FetchToken returns a media token for joining an existing channel, used by
// the callee when the incoming offer carried none.
func (c *Client) FetchToken(ctx context.Context, channelID, localID string) (string, error) {
	req := tokenRequest{ChannelID: channelID, LocalID: localID}
	var resp tokenResponse
	if err := c.post(ctx, "/calls/token", req, &resp); err != nil {
		return "", err
	}
	if resp.MediaToken == "" {
		return "", fmt.Errorf("tokens: server returned no media token")
	}
	return resp.MediaToken, nil
}

// post sends one JSON request and decodes the enveloped response into out.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tokens: marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tokens: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("tokens: sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("tokens: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Error != "" {
			return fmt.Errorf("tokens: api error (status %d): %s", resp.StatusCode, env.Error)
		}
		return fmt.Errorf("tokens: api returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("tokens: decoding response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("tokens: decoding response data: %w", err)
	}
	return nil
}
