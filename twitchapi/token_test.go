package twitchapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenSourceCachesToken(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		_, _ = w.Write([]byte(`{"access_token":"tok123","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	ts := &TokenSource{ClientID: "cid", ClientSecret: "sec", TokenURL: srv.URL}
	tok, err := ts.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok != "tok123" {
		t.Errorf("token = %q", tok)
	}
	// A second Get within the expiry window reuses the cached token.
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if requests != 1 {
		t.Errorf("token endpoint hit %d times, want 1", requests)
	}
}

func TestTokenSourceRefreshesNearExpiry(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Expires inside the refresh buffer, so every Get refreshes.
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":30}`))
	}))
	defer srv.Close()

	ts := &TokenSource{ClientID: "cid", ClientSecret: "sec", TokenURL: srv.URL}
	for i := 0; i < 2; i++ {
		if _, err := ts.Get(context.Background()); err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
	}
	if requests != 2 {
		t.Errorf("token endpoint hit %d times, want 2", requests)
	}
}

func TestTokenSourceMissingCredentials(t *testing.T) {
	ts := &TokenSource{}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Error("expected an error without credentials")
	}
}

func TestTokenSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid client"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	ts := &TokenSource{ClientID: "cid", ClientSecret: "bad", TokenURL: srv.URL}
	if _, err := ts.Get(context.Background()); err == nil {
		t.Error("expected an error for a rejected request")
	}
}
