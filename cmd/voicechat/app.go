package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"VoiceChat/internal/cache"
	"VoiceChat/internal/chatbot"
	"VoiceChat/internal/config"
	"VoiceChat/internal/llm"
	"VoiceChat/internal/stt"
	"VoiceChat/internal/telemetry"
	"VoiceChat/internal/tts"
)

// app holds the collaborators shared by serve and ask
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	bot     *chatbot.Bot
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logStdout bool) (*app, error) {
	a := &app{cfg: cfg}

	logger, logFile, err := telemetry.InitLogger(telemetry.LoggerOptions{
		Dir:    cfg.LogDir,
		Level:  cfg.SlogLevel(),
		Stdout: cfg.LogStdout || logStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	a.closers = append(a.closers, func() { logFile.Close() })

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	if missing := cfg.MissingKeys(); len(missing) > 0 {
		logger.Warn("API keys not set; the affected steps will report errors", "missing", strings.Join(missing, ","))
	}

	audioCache, err := cache.NewAudioCache(cfg.TTSCacheSize)
	if err != nil {
		a.Close()
		return nil, err
	}

	bot, err := chatbot.New(chatbot.Options{
		Transcriber: stt.NewDeepgram(stt.DeepgramOptions{
			APIKey:      cfg.DeepgramAPIKey,
			BaseURL:     cfg.DeepgramBaseURL,
			Model:       cfg.DeepgramModel,
			SmartFormat: true,
			Timeout:     cfg.STTTimeout,
			Logger:      logger,
		}),
		Generator: llm.NewGemini(llm.GeminiOptions{
			APIKey:  cfg.GoogleAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		}),
		Synthesizer: tts.NewGoogleTranslate(tts.GoogleOptions{
			BaseURL: cfg.TTSBaseURL,
			Timeout: cfg.TTSTimeout,
			Cache:   audioCache,
			Logger:  logger,
		}),
		Lang:       cfg.TTSLang,
		STTTimeout: cfg.STTTimeout,
		LLMTimeout: cfg.LLMTimeout,
		TTSTimeout: cfg.TTSTimeout,
		Logger:     logger,
		Tracer:     tracer,
		Meter:      meter,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create chatbot: %w", err)
	}
	a.bot = bot

	logger.Info("voicechat initialized",
		"gemini_model", cfg.GeminiModel,
		"tts_lang", cfg.TTSLang,
		"max_sessions", cfg.MaxSessions,
	)
	return a, nil
}

// Close releases resources in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
