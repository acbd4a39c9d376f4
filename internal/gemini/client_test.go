package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", "test-model", srv.URL, 10*time.Second), srv
}

func TestGenerateText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest
	c, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"world"}]}}]}`))
	})

	out, err := c.GenerateText(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out != "hello world" {
		t.Errorf("reply = %q, want %q", out, "hello world")
	}
	if gotPath != "/models/test-model:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "say hello" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestGenerateFromAudio(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3data"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotBody generateRequest
	c, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"transcript"}]}}]}`))
	})

	out, err := c.GenerateFromAudio(context.Background(), "transcribe this", audioPath)
	if err != nil {
		t.Fatalf("GenerateFromAudio: %v", err)
	}
	if out != "transcript" {
		t.Errorf("reply = %q", out)
	}
	parts := gotBody.Contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MimeType != "audio/mpeg" {
		t.Errorf("audio part = %+v", parts[1])
	}
	if parts[1].InlineData.Data == "" {
		t.Error("audio part has no data")
	}
}

func TestGenerateAPIError(t *testing.T) {
	c, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	})

	_, err := c.GenerateText(context.Background(), "hi")
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("want *APIError, got %v", err)
	}
	if ae.Status != http.StatusTooManyRequests || ae.Message != "quota exceeded" {
		t.Errorf("APIError = %+v", ae)
	}
}

func TestGenerateEmptyCandidates(t *testing.T) {
	c, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})
	if _, err := c.GenerateText(context.Background(), "hi"); err == nil {
		t.Fatal("want error on empty candidates")
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &APIError{Status: 429}, true},
		{"server error", &APIError{Status: 503}, true},
		{"bad request", &APIError{Status: 400}, false},
		{"unauthorized", &APIError{Status: 403}, false},
		{"canceled", context.Canceled, false},
		{"attempt timeout", context.DeadlineExceeded, true},
		{"wrapped attempt timeout", fmt.Errorf("gemini request: %w", context.DeadlineExceeded), true},
		{"transport", errors.New("connection reset"), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsTransient(c.err); got != c.want {
				t.Errorf("IsTransient = %v, want %v", got, c.want)
			}
		})
	}
}
