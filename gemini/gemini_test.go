package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGenerateMissingAPIKey(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "", 5*time.Second)

	_, err := client.Generate(context.Background(), "hello")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("missing key must fail before any network I/O, saw %d requests", got)
	}
}

func TestGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if want := "/v1beta/models/gemini-2.5-flash:generateContent"; r.URL.Path != want {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "secret" {
			t.Errorf("expected API key header, got %q", got)
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 {
			t.Fatalf("unexpected request shape: %+v", req)
		}
		if req.Contents[0].Parts[0].Text != "analyze this" {
			t.Errorf("unexpected prompt: %q", req.Contents[0].Parts[0].Text)
		}

		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"model reply"}]}}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "secret", 5*time.Second)

	text, err := client.Generate(context.Background(), "analyze this")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "model reply" {
		t.Errorf("expected 'model reply', got %q", text)
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "secret", 5*time.Second)

	_, err := client.Generate(context.Background(), "p")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", statusErr.StatusCode)
	}
	if !strings.Contains(statusErr.Body, "quota exceeded") {
		t.Errorf("expected upstream body in error, got %q", statusErr.Body)
	}
}

func TestGenerateMalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "<html>gateway error</html>"},
		{"no candidates", `{"candidates":[]}`},
		{"no parts", `{"candidates":[{"content":{"parts":[]}}]}`},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewClient(server.URL, "", "secret", 5*time.Second)
			if _, err := client.Generate(context.Background(), "p"); !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestGenerateEmptyCandidateTextAllowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "secret", 5*time.Second)

	// An empty text part is still a well-formed reply; rejecting it is the
	// parser's call, not the transport's.
	text, err := client.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient("", "", "key", 0)
	if client.baseURL != DefaultBaseURL {
		t.Errorf("expected default base URL, got %q", client.baseURL)
	}
	if client.model != DefaultModel {
		t.Errorf("expected default model, got %q", client.model)
	}
	if client.httpClient.Timeout != defaultTimeout {
		t.Errorf("expected default timeout, got %v", client.httpClient.Timeout)
	}
}
