// SPDX-License-Identifier: MIT
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"tonecast/internal/message"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Assistant notifies a voice assistant. A fresh bearer token is fetched with
// the client-credentials grant before every delivery.
type Assistant struct {
	endpoint string
	creds    *clientcredentials.Config
	client   *http.Client
}

type assistantPayload struct {
	Speech    string `json:"speech"`
	Timestamp string `json:"timestamp"`
}

// NewAssistant creates the sink.
func NewAssistant(endpoint string, creds *clientcredentials.Config, client *http.Client) (*Assistant, error) {
	if endpoint == "" {
		return nil, errors.New("assistant endpoint is empty")
	}
	if creds == nil || creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, errors.New("assistant client credentials are missing")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Assistant{endpoint: endpoint, creds: creds, client: client}, nil
}

// Name implements Sink.
func (a *Assistant) Name() string { return "assistant" }

// Deliver fetches a token and posts the message text as speech.
func (a *Assistant) Deliver(ctx context.Context, msg message.Message) error {
	tok, err := a.creds.Token(context.WithValue(ctx, oauth2.HTTPClient, a.client))
	if err != nil {
		return fmt.Errorf("failed to fetch assistant token: %w", err)
	}

	body, err := json.Marshal(assistantPayload{
		Speech:    msg.Text,
		Timestamp: msg.Timestamp.UTC().Format(message.TimestampFormat),
	})
	if err != nil {
		return fmt.Errorf("failed to encode assistant payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build assistant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tok.SetAuthHeader(req)

	return doRequest(a.client, req)
}
