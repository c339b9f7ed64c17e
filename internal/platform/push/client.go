// Package push expose le client HTTP de la passerelle de notifications push.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request est la charge utile d'un envoi, groupé sur tous les jetons actifs
// du destinataire.
type Request struct {
	Tokens    []string       `json:"include_player_ids"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Priority  string         `json:"priority"`
	Sound     string         `json:"sound,omitempty"`
	ChannelID string         `json:"android_channel_id,omitempty"`
}

// Result est la réponse de la passerelle.
type Result struct {
	ID         string `json:"id"`
	Recipients int    `json:"recipients"`
}

type Client interface {
	Send(ctx context.Context, req *Request) (*Result, error)
}

type httpClient struct {
	gatewayURL string
	appID      string
	apiKey     string
	client     *http.Client
}

// NewClient construit un client de passerelle push authentifié par app-id + clé API.
func NewClient(gatewayURL, appID, apiKey string) Client {
	return &httpClient{
		gatewayURL: gatewayURL,
		appID:      appID,
		apiKey:     apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type gatewayPayload struct {
	AppID string `json:"app_id"`
	Request
}

func (c *httpClient) Send(ctx context.Context, req *Request) (*Result, error) {
	if len(req.Tokens) == 0 {
		return &Result{}, nil
	}

	jsonData, err := json.Marshal(gatewayPayload{AppID: c.appID, Request: *req})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build push request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("push gateway call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("push gateway error %d: %s", resp.StatusCode, string(body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode push response: %w", err)
	}
	return &result, nil
}
