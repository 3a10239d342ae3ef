// Package summarize asks Claude for pin summaries and collection
// suggestions.
//
// It is optional: nothing in sync depends on it, and the CLI only builds a
// Summarizer when an API key is configured.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pinsync/pinsync/internal/schema"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "claude-sonnet-4-5"

	// maxContent bounds the page text sent with a request.
	maxContent = 12000
)

// ErrNoMatch is returned by Categorize when no collection fits.
var ErrNoMatch = errors.New("no matching collection")

// Config configures the client.
type Config struct {
	APIKey string

	// Model name (default: DefaultModel)
	Model string

	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string

	// MaxTokens bounds each reply (default: 400)
	MaxTokens int64

	Logger *log.Logger
}

// Summarizer wraps the Messages API.
type Summarizer struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *log.Logger
	now       func() time.Time
}

// New creates a Summarizer. An API key is required.
func New(cfg Config) (*Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[summarize] ", log.LstdFlags)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL), option.WithMaxRetries(0))
	}

	return &Summarizer{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

const summarySystem = `You summarize web pages a user has saved. Reply with two or three plain
sentences describing what the page is about. No preamble, no markdown.`

// Summarize returns a short summary of page. content is the page text; when
// empty only the title and URL are available to the model.
func (s *Summarizer) Summarize(ctx context.Context, page schema.Page, content string) (*schema.Summary, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", page.URL)
	if page.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", page.Title)
	}
	if page.SiteName != "" {
		fmt.Fprintf(&b, "Site: %s\n", page.SiteName)
	}
	if content = strings.TrimSpace(content); content != "" {
		fmt.Fprintf(&b, "\nPage text:\n%s\n", truncate(content, maxContent))
	}

	text, err := s.complete(ctx, summarySystem, b.String())
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("empty summary")
	}
	return &schema.Summary{Text: text, CreatedAt: s.now().UTC()}, nil
}

const categorizeSystem = `You file saved web pages into the user's collections. Each collection
has an id, a name and a goal. Reply with only the id of the single best
collection, or NONE if no collection fits.`

// Categorize picks the collection whose goal best fits page and returns its
// id. It returns ErrNoMatch when the model finds no fit or answers with an
// unknown id.
func (s *Summarizer) Categorize(ctx context.Context, page schema.Page, summary string, collections []*schema.Collection) (string, error) {
	if len(collections) == 0 {
		return "", ErrNoMatch
	}

	var b strings.Builder
	b.WriteString("Collections:\n")
	known := make(map[string]bool, len(collections))
	for _, c := range collections {
		known[c.ID] = true
		fmt.Fprintf(&b, "- id=%s name=%q goal=%q\n", c.ID, c.Name, c.Goal)
	}
	fmt.Fprintf(&b, "\nPage:\nURL: %s\nTitle: %s\n", page.URL, page.Title)
	if summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", summary)
	}

	reply, err := s.complete(ctx, categorizeSystem, b.String())
	if err != nil {
		return "", err
	}
	id := strings.Trim(strings.TrimSpace(reply), "\"'`.")
	if id == "" || strings.EqualFold(id, "none") {
		return "", ErrNoMatch
	}
	if !known[id] {
		s.logger.Printf("model suggested unknown collection %q", id)
		return "", ErrNoMatch
	}
	return id, nil
}

// complete sends one user turn and returns the concatenated text blocks.
func (s *Summarizer) complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
