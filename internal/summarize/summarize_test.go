package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pinsync/pinsync/internal/schema"
)

// fakeAPI answers /v1/messages with a fixed text reply and records prompts.
type fakeAPI struct {
	mu      sync.Mutex
	reply   string
	status  int
	prompts []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
		http.NotFound(w, r)
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.prompts = append(f.prompts, string(body))
	status, reply := f.status, f.reply
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
		return
	}
	text, _ := json.Marshal(reply)
	fmt.Fprintf(w, `{
		"id": "msg_test",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"content": [{"type": "text", "text": %s}],
		"stop_reason": "end_turn",
		"stop_sequence": null,
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`, text)
}

func (f *fakeAPI) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func newTestSummarizer(t *testing.T, api *fakeAPI) *Summarizer {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	s, err := New(Config{APIKey: "test-key", BaseURL: srv.URL, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without api key should fail")
	}
}

func TestSummarize(t *testing.T) {
	api := &fakeAPI{reply: "  A guide to Go concurrency.  "}
	s := newTestSummarizer(t, api)

	sum, err := s.Summarize(context.Background(),
		schema.Page{URL: "https://go.dev/blog/pipelines", Title: "Pipelines"}, "Channels and goroutines.")
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}
	if sum.Text != "A guide to Go concurrency." {
		t.Errorf("Text = %q", sum.Text)
	}
	if sum.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	prompt := api.lastPrompt()
	for _, want := range []string{"go.dev/blog/pipelines", "Pipelines", "Channels and goroutines."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("request missing %q", want)
		}
	}
}

func TestSummarize_APIError(t *testing.T) {
	s := newTestSummarizer(t, &fakeAPI{status: http.StatusInternalServerError})
	if _, err := s.Summarize(context.Background(), schema.Page{URL: "https://example.com"}, ""); err == nil {
		t.Error("Summarize() should fail on API error")
	}
}

func TestSummarize_EmptyReply(t *testing.T) {
	s := newTestSummarizer(t, &fakeAPI{reply: "   "})
	if _, err := s.Summarize(context.Background(), schema.Page{URL: "https://example.com"}, ""); err == nil {
		t.Error("empty reply should be an error")
	}
}

func TestCategorize(t *testing.T) {
	collections := []*schema.Collection{
		{ID: "c-go", Name: "Go", Goal: "Learn Go"},
		{ID: "c-cook", Name: "Cooking", Goal: "Weeknight dinners"},
	}

	tests := []struct {
		reply   string
		want    string
		wantErr error
	}{
		{"c-go", "c-go", nil},
		{" \"c-cook\". ", "c-cook", nil},
		{"NONE", "", ErrNoMatch},
		{"c-unknown", "", ErrNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			api := &fakeAPI{reply: tt.reply}
			s := newTestSummarizer(t, api)
			got, err := s.Categorize(context.Background(), schema.Page{URL: "https://go.dev", Title: "Go"}, "", collections)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Categorize() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Categorize() = %q, want %q", got, tt.want)
			}
			if !strings.Contains(api.lastPrompt(), "Weeknight dinners") {
				t.Error("collection goals should be sent")
			}
		})
	}
}

func TestCategorize_NoCollections(t *testing.T) {
	api := &fakeAPI{reply: "x"}
	s := newTestSummarizer(t, api)
	if _, err := s.Categorize(context.Background(), schema.Page{URL: "https://go.dev"}, "", nil); !errors.Is(err, ErrNoMatch) {
		t.Errorf("Categorize() = %v, want ErrNoMatch", err)
	}
	if api.lastPrompt() != "" {
		t.Error("no request should be sent without collections")
	}
}

func TestFetchText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><style>body{}</style><script>var x = 1;</script></head>
<body><h1>Title &amp; more</h1><p>First   paragraph.</p></body></html>`)
	}))
	defer srv.Close()

	text, err := FetchText(context.Background(), nil, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Title & more First paragraph." {
		t.Errorf("FetchText() = %q", text)
	}
	if _, err := FetchText(context.Background(), nil, srv.URL+"/missing"); err == nil {
		t.Error("404 should be an error")
	}
}

func TestHTMLText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>Don&#8217;t &mdash; caf&eacute; &#x27;q&#x27; a &lt;b&gt;</p>", "Don\u2019t \u2014 caf\u00e9 'q' a <b>"},
		{"<p>&amp;lt; stays escaped once</p>", "&lt; stays escaped once"},
		{"a&nbsp;b<br>c", "a b c"},
		{"<div>keep<svg><text>icon</text></svg><noscript>enable js</noscript> this</div>", "keep this"},
		{"<template><p>hidden</p></template>shown", "shown"},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		if got := htmlText(tt.in); got != tt.want {
			t.Errorf("htmlText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 2); got != "h" {
		t.Errorf("truncate() = %q, want rune-safe cut", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Errorf("truncate() = %q", got)
	}
}
