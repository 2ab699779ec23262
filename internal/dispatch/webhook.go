// SPDX-License-Identifier: MIT
package dispatch

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"tonecast/internal/message"

	"github.com/google/uuid"
)

// DeliveryIDHeader carries a unique ID per webhook request.
const DeliveryIDHeader = "X-Delivery-ID"

const (
	webhookKeySize = 32
	gcmNonceSize   = 12
	gcmTagSize     = 16
)

// Webhook posts each message to a URL, once, with no retry. With a key the
// body is encrypted; see Encrypt.
type Webhook struct {
	url    string
	key    []byte
	client *http.Client
}

// NewWebhook creates a webhook sink. key may be nil for plain JSON bodies.
func NewWebhook(url string, key []byte, client *http.Client) (*Webhook, error) {
	if url == "" {
		return nil, errors.New("webhook url is empty")
	}
	if key != nil && len(key) != webhookKeySize {
		return nil, fmt.Errorf("webhook key must be %d bytes, got %d", webhookKeySize, len(key))
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{url: url, key: key, client: client}, nil
}

// Name implements Sink.
func (w *Webhook) Name() string { return "webhook" }

// Deliver posts msg.
func (w *Webhook) Deliver(ctx context.Context, msg message.Message) error {
	ev := msg.Event()
	ev.Symbols = nil
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	contentType := "application/json"
	body := payload
	if w.key != nil {
		sealed, err := Encrypt(w.key, payload)
		if err != nil {
			return err
		}
		body = []byte(sealed)
		contentType = "text/plain"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(DeliveryIDHeader, uuid.NewString())

	return doRequest(w.client, req)
}

// Encrypt seals plaintext with AES-256-GCM under a fresh 12-byte nonce and
// returns base64(nonce || tag || ciphertext).
func Encrypt(key, plaintext []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	out := make([]byte, 0, len(sealed)+gcmNonceSize)
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Receivers of encrypted webhooks use it.
func Decrypt(key []byte, body string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook body encoding: %w", err)
	}
	if len(raw) < gcmNonceSize+gcmTagSize {
		return nil, errors.New("webhook body too short")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := raw[:gcmNonceSize]
	tag := raw[gcmNonceSize : gcmNonceSize+gcmTagSize]
	ct := raw[gcmNonceSize+gcmTagSize:]

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt webhook body: %w", err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != webhookKeySize {
		return nil, fmt.Errorf("webhook key must be %d bytes, got %d", webhookKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// doRequest sends req and treats any non-2xx status as an error.
func doRequest(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request to %s returned %s", req.URL.Host, resp.Status)
	}
	return nil
}
