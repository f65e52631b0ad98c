// Package stt provides speech-to-text transcription.
package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is the Deepgram API root
	DefaultBaseURL = "https://api.deepgram.com"

	defaultContentType = "audio/wav"
	listenPath         = "/v1/listen"
	maxLoggedBody      = 512
)

var (
	// ErrEmptyAudio is returned when there is nothing to transcribe
	ErrEmptyAudio = errors.New("no audio to transcribe")
	// ErrMalformedResponse is returned when the service replies with something other than JSON
	ErrMalformedResponse = errors.New("malformed transcription response")
)

// Transcriber converts recorded audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

// DeepgramOptions configures a DeepgramClient
type DeepgramOptions struct {
	APIKey      string
	BaseURL     string
	Model       string // e.g. "nova-2"; empty lets the service pick
	Language    string
	SmartFormat bool
	Timeout     time.Duration
	Logger      *slog.Logger
}

// DeepgramClient calls Deepgram's pre-recorded /v1/listen endpoint
type DeepgramClient struct {
	http   *resty.Client
	opts   DeepgramOptions
	logger *slog.Logger
}

var _ Transcriber = (*DeepgramClient)(nil)

// NewDeepgram creates a Deepgram client
func NewDeepgram(opts DeepgramOptions) *DeepgramClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("User-Agent", "VoiceChat/1.0")
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	return &DeepgramClient{
		http:   client,
		opts:   opts,
		logger: logger,
	}
}

// Transcribe posts the audio and extracts the first alternative's transcript.
// A well-formed reply that lacks a transcript yields "" and no error.
func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	if contentType == "" {
		contentType = DetectContentType(audio)
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Token "+c.opts.APIKey).
		SetHeader("Content-Type", contentType).
		SetBody(audio)
	if c.opts.Model != "" {
		req.SetQueryParam("model", c.opts.Model)
	}
	if c.opts.Language != "" {
		req.SetQueryParam("language", c.opts.Language)
	}
	if c.opts.SmartFormat {
		req.SetQueryParam("smart_format", "true")
	}

	resp, err := req.Post(listenPath)
	if err != nil {
		return "", fmt.Errorf("failed to send deepgram request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("deepgram error %d: %s", resp.StatusCode(), truncate(resp.String(), maxLoggedBody))
	}

	body := resp.Body()
	c.logger.Debug("deepgram response", "status", resp.StatusCode(), "body", truncate(string(body), maxLoggedBody))

	if !json.Valid(body) {
		return "", ErrMalformedResponse
	}
	return ExtractTranscript(body), nil
}

// ExtractTranscript reads results.channels[0].alternatives[0].transcript,
// returning "" when any segment of the path is absent.
func ExtractTranscript(body []byte) string {
	transcript, err := jsonparser.GetString(body, "results", "channels", "[0]", "alternatives", "[0]", "transcript")
	if err != nil {
		return ""
	}
	return transcript
}

// DetectContentType sniffs recorded audio for the Content-Type header.
// Unknown data is declared as WAV.
func DetectContentType(audio []byte) string {
	if len(audio) == 0 {
		return defaultContentType
	}
	mtype := mimetype.Detect(audio)
	switch {
	case mtype.Is("video/webm"):
		// browser MediaRecorder output; the container carries audio only
		return "audio/webm"
	case mtype.Is("application/ogg"):
		return "audio/ogg"
	case strings.HasPrefix(mtype.String(), "audio/"):
		return mtype.String()
	}
	for p := mtype.Parent(); p != nil; p = p.Parent() {
		if strings.HasPrefix(p.String(), "audio/") {
			return p.String()
		}
	}
	return defaultContentType
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
