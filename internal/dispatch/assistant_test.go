// SPDX-License-Identifier: MIT
package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2/clientcredentials"
)

func assistantServer(t *testing.T, tokenStatus int) (*httptest.Server, *atomic.Int32, chan *http.Request) {
	t.Helper()
	var tokens atomic.Int32
	notes := make(chan *http.Request, 4)

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokens.Add(1)
		if tokenStatus != http.StatusOK {
			http.Error(w, `{"error":"invalid_client"}`, tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/notify", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		r.Header.Set("X-Speech", body["speech"])
		r.Header.Set("X-Timestamp", body["timestamp"])
		notes <- r
		w.WriteHeader(http.StatusAccepted)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokens, notes
}

func newTestAssistant(t *testing.T, srv *httptest.Server) *Assistant {
	t.Helper()
	a, err := NewAssistant(srv.URL+"/notify", &clientcredentials.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
	}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAssistantDeliver(t *testing.T) {
	srv, tokens, notes := assistantServer(t, http.StatusOK)
	a := newTestAssistant(t, srv)

	for range 2 {
		if err := a.Deliver(context.Background(), testMessage()); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
		r := <-notes
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Speech"); got != testMessage().Text {
			t.Errorf("speech = %q", got)
		}
		if r.Header.Get("X-Timestamp") == "" {
			t.Error("timestamp missing")
		}
	}
	if n := tokens.Load(); n != 2 {
		t.Errorf("token endpoint hit %d times, want once per delivery", n)
	}
}

func TestAssistantTokenFailure(t *testing.T) {
	srv, _, notes := assistantServer(t, http.StatusUnauthorized)
	a := newTestAssistant(t, srv)

	if err := a.Deliver(context.Background(), testMessage()); err == nil {
		t.Fatal("expected token error")
	}
	select {
	case <-notes:
		t.Error("notification must not be sent without a token")
	default:
	}
}

func TestNewAssistantValidation(t *testing.T) {
	if _, err := NewAssistant("", &clientcredentials.Config{ClientID: "a", ClientSecret: "b"}, nil); err == nil {
		t.Error("expected error for empty endpoint")
	}
	if _, err := NewAssistant("http://x", &clientcredentials.Config{}, nil); err == nil {
		t.Error("expected error for missing credentials")
	}
}
