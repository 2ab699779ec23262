// SPDX-License-Identifier: MIT
package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

type capturedRequest struct {
	header http.Header
	body   []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	reqs := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs <- capturedRequest{header: r.Header.Clone(), body: body}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func TestEncryptDecrypt(t *testing.T) {
	plain := []byte(`{"message":"hello"}`)
	sealed, err := Encrypt(testKey, plain)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != gcmNonceSize+gcmTagSize+len(plain) {
		t.Errorf("sealed length = %d, want %d", len(raw), gcmNonceSize+gcmTagSize+len(plain))
	}

	got, err := Decrypt(testKey, sealed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("Decrypt() = %q, want %q", got, plain)
	}

	other, _ := Encrypt(testKey, plain)
	if other == sealed {
		t.Error("nonce must be fresh for every call")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	sealed, _ := Encrypt(testKey, []byte("payload"))
	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	if _, err := Decrypt(testKey, base64.StdEncoding.EncodeToString(raw)); err == nil {
		t.Error("expected authentication failure")
	}
	if _, err := Decrypt(testKey, "AAAA"); err == nil {
		t.Error("expected error for short body")
	}
	if _, err := Decrypt(testKey[:16], sealed); err == nil {
		t.Error("expected error for wrong key size")
	}
}

func TestWebhookEncrypted(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusNoContent)
	w, err := NewWebhook(srv.URL, testKey, srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Deliver(context.Background(), testMessage()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	req := <-reqs

	if ct := req.header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q", ct)
	}
	if _, err := uuid.Parse(req.header.Get(DeliveryIDHeader)); err != nil {
		t.Errorf("delivery id: %v", err)
	}

	plain, err := Decrypt(testKey, string(req.body))
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(plain, &payload); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"timestamp", "message", "frequency", "magnitude"} {
		if _, ok := payload[k]; !ok {
			t.Errorf("payload missing %q: %s", k, plain)
		}
	}
	if _, ok := payload["symbols"]; ok {
		t.Error("webhook payload must not carry symbols")
	}
}

func TestWebhookPlain(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusOK)
	w, err := NewWebhook(srv.URL, nil, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Deliver(context.Background(), testMessage()); err != nil {
		t.Fatal(err)
	}
	req := <-reqs
	if ct := req.header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !json.Valid(req.body) {
		t.Errorf("body is not JSON: %s", req.body)
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadGateway)
	w, _ := NewWebhook(srv.URL, nil, srv.Client())
	if err := w.Deliver(context.Background(), testMessage()); err == nil {
		t.Error("expected error for 502")
	}
}

func TestNewWebhookValidation(t *testing.T) {
	if _, err := NewWebhook("", nil, nil); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := NewWebhook("http://example.invalid", []byte("short"), nil); err == nil {
		t.Error("expected error for short key")
	}
}
