package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"VoiceChat/internal/conversation"
	"VoiceChat/internal/llm"
	"VoiceChat/internal/session"
	"VoiceChat/internal/stt"
	"VoiceChat/internal/tts"
)

const (
	msgNoAudio      = "No audio recorded. Please start recording."
	msgNoTranscript = "No transcript available. Please convert audio first."
	msgGenFailed    = "Failed to generate a response from Gemini."
)

var errEmptyReply = errors.New("model returned an empty reply")

// Level is the severity of a user-visible notice
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a message surfaced to the user instead of a failure
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Result is the outcome of one user action
type Result struct {
	Notices    []Notice
	Transcript *string
	Reply      string
	Audio      []byte
	Generated  bool
}

func (r *Result) warn(format string, args ...any) {
	r.Notices = append(r.Notices, Notice{Level: LevelWarning, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) fail(format string, args ...any) {
	r.Notices = append(r.Notices, Notice{Level: LevelError, Message: fmt.Sprintf(format, args...)})
}

// Options wires a Bot to its collaborators
type Options struct {
	Transcriber stt.Transcriber
	Generator   llm.Generator
	Synthesizer tts.Synthesizer

	// Lang is the language code used for speech synthesis
	Lang string

	STTTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration

	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
}

// Bot runs the record → transcribe → generate → synthesize flow against a
// session. Every collaborator failure is turned into a Notice.
type Bot struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	stageDuration metric.Float64Histogram
	stageFailures metric.Int64Counter
	turns         metric.Int64Counter
}

// New creates a Bot
func New(opts Options) (*Bot, error) {
	if opts.Lang == "" {
		opts.Lang = "en"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracenoop.NewTracerProvider().Tracer("voicechat")
	}
	if opts.Meter == nil {
		opts.Meter = metricnoop.NewMeterProvider().Meter("voicechat")
	}

	stageDuration, err := opts.Meter.Float64Histogram(
		"voicechat.stage.duration",
		metric.WithDescription("External call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	stageFailures, err := opts.Meter.Int64Counter(
		"voicechat.stage.failures",
		metric.WithDescription("External call failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failure counter: %w", err)
	}
	turns, err := opts.Meter.Int64Counter(
		"voicechat.turns",
		metric.WithDescription("Turns appended to conversation logs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn counter: %w", err)
	}

	return &Bot{
		opts:          opts,
		logger:        logger,
		tracer:        opts.Tracer,
		stageDuration: stageDuration,
		stageFailures: stageFailures,
		turns:         turns,
	}, nil
}

// SetAudio stores a new recording on the session. Empty audio clears it.
func (b *Bot) SetAudio(st *session.State, audio []byte, contentType string) {
	if len(audio) == 0 {
		st.Audio = nil
		return
	}
	if !strings.HasPrefix(contentType, "audio/") {
		contentType = stt.DetectContentType(audio)
	}
	st.Audio = &session.Recording{Data: audio, ContentType: contentType}
	b.logger.Info("audio recorded", "session_id", st.ID, "bytes", len(audio), "content_type", contentType)
}

// Convert transcribes the session's recording into its transcript.
// Without a recording it only warns and leaves the transcript untouched.
func (b *Bot) Convert(ctx context.Context, st *session.State) Result {
	var res Result
	if st.Audio == nil || len(st.Audio.Data) == 0 {
		res.warn(msgNoAudio)
		return res
	}

	text, err := b.transcribe(ctx, st)
	if err != nil {
		b.logger.Warn("transcription failed", "session_id", st.ID, "error", err)
		res.warn("Error in Deepgram request: %v", err)
		text = ""
	}

	st.SetTranscript(text)
	res.Transcript = st.Transcript
	return res
}

// Generate answers the session's transcript, appends the exchange to the
// conversation log, then speaks the reply.
func (b *Bot) Generate(ctx context.Context, st *session.State) Result {
	return b.GenerateStream(ctx, st, nil)
}

// GenerateStream is Generate with onFragment called for each reply fragment
// as it arrives. Fragments are reported even if the stream later fails.
func (b *Bot) GenerateStream(ctx context.Context, st *session.State, onFragment func(string)) Result {
	var res Result
	if !st.HasTranscript() {
		res.warn(msgNoTranscript)
		return res
	}
	prompt := *st.Transcript
	res.Transcript = st.Transcript

	reply, err := b.generate(ctx, st, prompt, onFragment)
	if err != nil {
		b.logger.Error("generation failed", "session_id", st.ID, "error", err)
		res.fail("Error getting response from Gemini: %v", err)
		res.fail(msgGenFailed)
		return res
	}

	st.Log.Append(conversation.User, prompt)
	st.Log.Append(conversation.Bot, reply)
	b.turns.Add(ctx, 2)
	res.Reply = reply
	res.Generated = true

	audio, err := b.synthesize(ctx, st, reply)
	if err != nil {
		b.logger.Error("synthesis failed", "session_id", st.ID, "error", err)
		res.fail("Error generating speech: %v", err)
	}
	res.Audio = audio
	st.Reply = &session.Reply{Text: reply, Audio: audio}
	return res
}

// Render returns the session's conversation as display lines
func (b *Bot) Render(st *session.State, collapse bool) []string {
	return st.Log.Render(conversation.CollapseRepeats(collapse))
}

func (b *Bot) transcribe(ctx context.Context, st *session.State) (string, error) {
	if b.opts.Transcriber == nil {
		return "", errors.New("no transcriber configured")
	}
	ctx, cancel := withTimeout(ctx, b.opts.STTTimeout)
	defer cancel()

	ctx, span := b.tracer.Start(ctx, "stt.transcribe", trace.WithAttributes(
		attribute.String("session.id", st.ID),
		attribute.Int("audio.bytes", len(st.Audio.Data)),
		attribute.String("audio.content_type", st.Audio.ContentType),
	))
	defer span.End()

	start := time.Now()
	text, err := b.opts.Transcriber.Transcribe(ctx, st.Audio.Data, st.Audio.ContentType)
	b.observe(ctx, span, "stt", start, err)
	return text, err
}

func (b *Bot) generate(ctx context.Context, st *session.State, prompt string, onFragment func(string)) (string, error) {
	if b.opts.Generator == nil {
		return "", llm.ErrNoGenerator
	}
	ctx, cancel := withTimeout(ctx, b.opts.LLMTimeout)
	defer cancel()

	ctx, span := b.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("session.id", st.ID),
		attribute.Int("history.turns", st.Log.Len()),
	))
	defer span.End()

	start := time.Now()
	reply, err := b.streamReply(ctx, st, prompt, onFragment)
	b.observe(ctx, span, "llm", start, err)
	return reply, err
}

func (b *Bot) streamReply(ctx context.Context, st *session.State, prompt string, onFragment func(string)) (string, error) {
	stream, err := b.opts.Generator.Generate(ctx, st.Log.Turns(), prompt)
	if err != nil {
		return "", err
	}
	reply, err := llm.DrainFunc(stream, onFragment)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", errEmptyReply
	}
	return reply, nil
}

func (b *Bot) synthesize(ctx context.Context, st *session.State, text string) ([]byte, error) {
	if b.opts.Synthesizer == nil {
		return nil, errors.New("no synthesizer configured")
	}
	ctx, cancel := withTimeout(ctx, b.opts.TTSTimeout)
	defer cancel()

	ctx, span := b.tracer.Start(ctx, "tts.synthesize", trace.WithAttributes(
		attribute.String("session.id", st.ID),
		attribute.Int("text.length", len(text)),
		attribute.String("lang", b.opts.Lang),
	))
	defer span.End()

	start := time.Now()
	audio, err := b.opts.Synthesizer.Synthesize(ctx, text, b.opts.Lang)
	b.observe(ctx, span, "tts", start, err)
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (b *Bot) observe(ctx context.Context, span trace.Span, stage string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.stageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
	b.stageDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
