package suggest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"filmgate/pkg/logx"
)

func TestSuggestReturnsFirstTitle(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "intersteller" {
			t.Errorf("query param %q", got)
		}
		if r.URL.Query().Get("api_key") == "" {
			t.Error("missing api_key param")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"name":"","title":"Interstellar"},{"title":"Other"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, logx.Nop())
	got, err := c.Suggest(context.Background(), "intersteller")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got != "Interstellar" {
		t.Fatalf("suggestion %q", got)
	}
}

func TestSuggestFallsBackAcrossTitleFields(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"original_title":"Oldboy"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, logx.Nop())
	got, err := c.Suggest(context.Background(), "oldboi")
	if err != nil || got != "Oldboy" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestSuggestDegradesToNone(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"rate limited", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"empty results", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"results":[]}`))
		}},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{nope`))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, logx.Nop())
			got, err := c.Suggest(context.Background(), "anything")
			if err != nil {
				t.Fatalf("degraded lookup returned error: %v", err)
			}
			if got != "" {
				t.Fatalf("got %q, want none", got)
			}
		})
	}
}

func TestSuggestWithoutAPIKey(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{}, logx.Nop())
	got, err := c.Suggest(context.Background(), "anything")
	if err != nil || got != "" {
		t.Fatalf("got %q, %v", got, err)
	}
}
