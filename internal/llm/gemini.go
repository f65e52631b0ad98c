package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/genai"

	"VoiceChat/internal/conversation"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiOptions configures a GeminiGenerator
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string // overrides the Gemini API endpoint, mainly for tests
	HTTPClient *http.Client
}

// GeminiGenerator streams replies from the Gemini API.
// The client is built on first use so a missing key fails the call, not startup.
type GeminiGenerator struct {
	opts GeminiOptions

	mu     sync.Mutex
	client *genai.Client
}

var _ Generator = (*GeminiGenerator)(nil)

// NewGemini creates a Gemini-backed generator
func NewGemini(opts GeminiOptions) *GeminiGenerator {
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	return &GeminiGenerator{opts: opts}
}

// Model returns the model name requests are sent to
func (g *GeminiGenerator) Model() string {
	return g.opts.Model
}

func (g *GeminiGenerator) clientFor(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     g.opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.opts.HTTPClient,
	}
	if g.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// Generate opens a chat seeded with history and streams the reply to prompt.
// Chunks that carry no text are skipped.
func (g *GeminiGenerator) Generate(ctx context.Context, history []conversation.Turn, prompt string) (Stream, error) {
	client, err := g.clientFor(ctx)
	if err != nil {
		return nil, err
	}

	chat, err := client.Chats.Create(ctx, g.opts.Model, nil, historyContents(history))
	if err != nil {
		return nil, fmt.Errorf("failed to start chat: %w", err)
	}

	responses := chat.SendMessageStream(ctx, genai.Part{Text: prompt})
	return FromSeq(func(yield func(string, error) bool) {
		for resp, err := range responses {
			if err != nil {
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}), nil
}

func historyContents(turns []conversation.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		if t.Text == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if t.Speaker == conversation.Bot {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return contents
}
