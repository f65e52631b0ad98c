// Package tts provides text-to-speech synthesis.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"VoiceChat/internal/cache"
)

const (
	// DefaultBaseURL is the Google Translate host serving translate_tts
	DefaultBaseURL = "https://translate.google.com"

	// MaxChunkRunes is the longest text the endpoint accepts per request
	MaxChunkRunes = 100

	defaultConcurrency = 4
)

// ErrEmptyText is returned when there is nothing to speak
var ErrEmptyText = errors.New("no text to synthesize")

// Synthesizer converts text into encoded audio held in memory
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// GoogleOptions configures a GoogleTranslateClient
type GoogleOptions struct {
	BaseURL     string
	Timeout     time.Duration
	Concurrency int
	Cache       *cache.AudioCache
	Logger      *slog.Logger
}

// GoogleTranslateClient synthesizes MP3 speech through Google Translate's
// public TTS endpoint, one request per text chunk.
type GoogleTranslateClient struct {
	http        *resty.Client
	concurrency int
	cache       *cache.AudioCache
	logger      *slog.Logger
}

var _ Synthesizer = (*GoogleTranslateClient)(nil)

// NewGoogleTranslate creates a synthesizer client
func NewGoogleTranslate(opts GoogleOptions) *GoogleTranslateClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("User-Agent", "Mozilla/5.0 (VoiceChat/1.0)").
		SetHeader("Referer", "http://translate.google.com/")
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	return &GoogleTranslateClient{
		http:        client,
		concurrency: opts.Concurrency,
		cache:       opts.Cache,
		logger:      logger,
	}
}

// Synthesize speaks text in lang and returns the concatenated MP3 stream
func (c *GoogleTranslateClient) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	chunks := SplitText(text, MaxChunkRunes)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}
	if lang == "" {
		lang = "en"
	}

	key := cache.Key(lang, text)
	if c.cache != nil {
		if audio, ok := c.cache.Get(key); ok {
			c.logger.Debug("tts cache hit", "key", key[:16])
			return audio, nil
		}
	}

	parts := make([][]byte, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			audio, err := c.fetchChunk(gctx, chunk, lang, i, len(chunks))
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			parts[i] = audio
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	audio := bytes.Join(parts, nil)
	if c.cache != nil {
		c.cache.Put(key, audio)
	}
	c.logger.Debug("synthesized speech", "chunks", len(chunks), "bytes", len(audio), "lang", lang)
	return audio, nil
}

func (c *GoogleTranslateClient) fetchChunk(ctx context.Context, chunk, lang string, idx, total int) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ie":      "UTF-8",
			"client":  "tw-ob",
			"tl":      lang,
			"q":       chunk,
			"total":   strconv.Itoa(total),
			"idx":     strconv.Itoa(idx),
			"textlen": strconv.Itoa(len([]rune(chunk))),
		}).
		Get("/translate_tts")
	if err != nil {
		return nil, fmt.Errorf("failed to send tts request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tts error %d", resp.StatusCode())
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("tts returned no audio")
	}
	return resp.Body(), nil
}

// SplitText breaks text into chunks of at most limit runes, cutting after
// sentence punctuation where possible, then at whitespace, then mid-word.
// Chunks with no letters or digits are dropped.
func SplitText(text string, limit int) []string {
	var chunks []string
	rest := []rune(strings.TrimSpace(text))

	for len(rest) > 0 {
		cut := len(rest)
		if cut > limit {
			cut = cutPoint(rest, limit)
		}
		chunk := strings.TrimSpace(string(rest[:cut]))
		if speakable(chunk) {
			chunks = append(chunks, chunk)
		}
		rest = []rune(strings.TrimSpace(string(rest[cut:])))
	}
	return chunks
}

// cutPoint is only called with len(r) > limit.
// Punctuation counts only when whitespace follows it, so "3.14" stays whole.
func cutPoint(r []rune, limit int) int {
	for i := limit; i > 0; i-- {
		if strings.ContainsRune(".,!?;:", r[i-1]) && unicode.IsSpace(r[i]) {
			return i
		}
	}
	for i := limit; i > 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return limit
}

func speakable(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
