package chatbot

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceChat/internal/conversation"
	"VoiceChat/internal/llm"
	"VoiceChat/internal/session"
)

// MockTranscriber is a func-field fake of stt.Transcriber
type MockTranscriber struct {
	TranscribeFunc func(ctx context.Context, audio []byte, contentType string) (string, error)
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio, contentType)
	}
	return "", nil
}

// MockGenerator is a func-field fake of llm.Generator
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, history []conversation.Turn, prompt string) (llm.Stream, error)
}

func (m *MockGenerator) Generate(ctx context.Context, history []conversation.Turn, prompt string) (llm.Stream, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, history, prompt)
	}
	return llm.FromSeq(func(func(string, error) bool) {}), nil
}

// MockSynthesizer is a func-field fake of tts.Synthesizer
type MockSynthesizer struct {
	SynthesizeFunc func(ctx context.Context, text, lang string) ([]byte, error)
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, lang)
	}
	return []byte("mp3"), nil
}

func streamOf(parts ...string) llm.Stream {
	return llm.FromSeq(iter.Seq2[string, error](func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}))
}

func replying(parts ...string) *MockGenerator {
	return &MockGenerator{
		GenerateFunc: func(ctx context.Context, history []conversation.Turn, prompt string) (llm.Stream, error) {
			return streamOf(parts...), nil
		},
	}
}

func newTestBot(t *testing.T, opts Options) *Bot {
	t.Helper()
	if opts.Transcriber == nil {
		opts.Transcriber = &MockTranscriber{}
	}
	if opts.Generator == nil {
		opts.Generator = replying("ok")
	}
	if opts.Synthesizer == nil {
		opts.Synthesizer = &MockSynthesizer{}
	}
	bot, err := New(opts)
	require.NoError(t, err)
	return bot
}

func newState(t *testing.T) *session.State {
	t.Helper()
	store, err := session.NewStore(session.StoreOptions{MaxSessions: 4})
	require.NoError(t, err)
	return store.Start()
}

func levels(notices []Notice) []Level {
	var out []Level
	for _, n := range notices {
		out = append(out, n.Level)
	}
	return out
}

func TestConvertWithoutAudioWarns(t *testing.T) {
	called := false
	bot := newTestBot(t, Options{Transcriber: &MockTranscriber{
		TranscribeFunc: func(ctx context.Context, audio []byte, contentType string) (string, error) {
			called = true
			return "x", nil
		},
	}})
	st := newState(t)

	res := bot.Convert(context.Background(), st)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, LevelWarning, res.Notices[0].Level)
	assert.Equal(t, msgNoAudio, res.Notices[0].Message)
	assert.Nil(t, st.Transcript)
	assert.Nil(t, res.Transcript)
	assert.False(t, called)
}

func TestConvertSetsTranscript(t *testing.T) {
	var gotType string
	bot := newTestBot(t, Options{Transcriber: &MockTranscriber{
		TranscribeFunc: func(ctx context.Context, audio []byte, contentType string) (string, error) {
			gotType = contentType
			return "hello", nil
		},
	}})
	st := newState(t)
	bot.SetAudio(st, []byte("webm bytes"), "audio/webm;codecs=opus")

	res := bot.Convert(context.Background(), st)
	assert.Empty(t, res.Notices)
	require.NotNil(t, res.Transcript)
	assert.Equal(t, "hello", *res.Transcript)
	assert.True(t, st.HasTranscript())
	assert.Equal(t, "audio/webm;codecs=opus", gotType)
}

func TestConvertFailureLeavesEmptyTranscript(t *testing.T) {
	bot := newTestBot(t, Options{Transcriber: &MockTranscriber{
		TranscribeFunc: func(ctx context.Context, audio []byte, contentType string) (string, error) {
			return "", errors.New("connection refused")
		},
	}})
	st := newState(t)
	bot.SetAudio(st, []byte("RIFF"), "")

	res := bot.Convert(context.Background(), st)
	assert.Equal(t, []Level{LevelWarning}, levels(res.Notices))
	assert.Equal(t, "Error in Deepgram request: connection refused", res.Notices[0].Message)
	require.NotNil(t, st.Transcript)
	assert.Equal(t, "", *st.Transcript)
	assert.False(t, st.HasTranscript())
}

func TestSetAudioEmptyClears(t *testing.T) {
	bot := newTestBot(t, Options{})
	st := newState(t)
	bot.SetAudio(st, []byte("data"), "audio/wav")
	require.NotNil(t, st.Audio)

	bot.SetAudio(st, nil, "")
	assert.Nil(t, st.Audio)
}

func TestGenerateWithoutTranscriptWarns(t *testing.T) {
	bot := newTestBot(t, Options{})
	st := newState(t)

	res := bot.Generate(context.Background(), st)
	assert.Equal(t, []Level{LevelWarning}, levels(res.Notices))
	assert.Equal(t, msgNoTranscript, res.Notices[0].Message)
	assert.Equal(t, 0, st.Log.Len())

	st.SetTranscript("")
	res = bot.Generate(context.Background(), st)
	assert.Equal(t, msgNoTranscript, res.Notices[0].Message)
	assert.Equal(t, 0, st.Log.Len())
}

func TestGenerateAppendsExchangeAndSpeaks(t *testing.T) {
	var spoken, lang string
	bot := newTestBot(t, Options{
		Generator: replying("Hi", " there"),
		Synthesizer: &MockSynthesizer{SynthesizeFunc: func(ctx context.Context, text, l string) ([]byte, error) {
			spoken, lang = text, l
			return []byte("mp3"), nil
		}},
		Lang: "en",
	})
	st := newState(t)
	st.SetTranscript("hello")

	res := bot.Generate(context.Background(), st)
	assert.Empty(t, res.Notices)
	assert.True(t, res.Generated)
	assert.Equal(t, "Hi\n there\n", res.Reply)
	assert.Equal(t, []byte("mp3"), res.Audio)
	assert.Equal(t, "Hi\n there\n", spoken)
	assert.Equal(t, "en", lang)

	lines := bot.Render(st, false)
	require.Len(t, lines, 2)
	assert.Equal(t, "User: hello", lines[0])
	assert.Equal(t, "Bot: Hi\n there\n", lines[1])
	require.NotNil(t, st.Reply)
	assert.Equal(t, []byte("mp3"), st.Reply.Audio)
}

func TestGeneratePassesHistory(t *testing.T) {
	var seen [][]conversation.Turn
	bot := newTestBot(t, Options{Generator: &MockGenerator{
		GenerateFunc: func(ctx context.Context, history []conversation.Turn, prompt string) (llm.Stream, error) {
			seen = append(seen, history)
			return streamOf("answer to " + prompt), nil
		},
	}})
	st := newState(t)

	st.SetTranscript("first")
	bot.Generate(context.Background(), st)
	st.SetTranscript("second")
	bot.Generate(context.Background(), st)

	require.Len(t, seen, 2)
	assert.Empty(t, seen[0])
	require.Len(t, seen[1], 2)
	assert.Equal(t, "first", seen[1][0].Text)
	assert.Equal(t, 4, st.Log.Len())
}

func TestGenerateFailureAppendsNothing(t *testing.T) {
	tests := []struct {
		name string
		gen  *MockGenerator
	}{
		{
			name: "call fails",
			gen: &MockGenerator{GenerateFunc: func(ctx context.Context, history []conversation.Turn, prompt string) (llm.Stream, error) {
				return nil, errors.New("invalid api key")
			}},
		},
		{
			name: "stream fails",
			gen: &MockGenerator{GenerateFunc: func(ctx context.Context, history []conversation.Turn, prompt string) (llm.Stream, error) {
				return llm.FromSeq(func(yield func(string, error) bool) {
					if yield("half", nil) {
						yield("", errors.New("stream reset"))
					}
				}), nil
			}},
		},
		{name: "empty reply", gen: replying()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			synthCalled := false
			bot := newTestBot(t, Options{
				Generator: tc.gen,
				Synthesizer: &MockSynthesizer{SynthesizeFunc: func(ctx context.Context, text, lang string) ([]byte, error) {
					synthCalled = true
					return nil, nil
				}},
			})
			st := newState(t)
			st.SetTranscript("hello")

			res := bot.Generate(context.Background(), st)
			assert.False(t, res.Generated)
			assert.Equal(t, []Level{LevelError, LevelError}, levels(res.Notices))
			assert.Contains(t, res.Notices[0].Message, "Error getting response from Gemini: ")
			assert.Equal(t, "Failed to generate a response from Gemini.", res.Notices[1].Message)
			assert.Equal(t, 0, st.Log.Len())
			assert.Nil(t, st.Reply)
			assert.False(t, synthCalled)
			assert.Equal(t, "hello", *st.Transcript)
		})
	}
}

func TestSynthesisFailureKeepsReply(t *testing.T) {
	bot := newTestBot(t, Options{
		Generator: replying("fine"),
		Synthesizer: &MockSynthesizer{SynthesizeFunc: func(ctx context.Context, text, lang string) ([]byte, error) {
			return nil, errors.New("tts 503")
		}},
	})
	st := newState(t)
	st.SetTranscript("how are you")

	res := bot.Generate(context.Background(), st)
	assert.True(t, res.Generated)
	assert.Equal(t, []Level{LevelError}, levels(res.Notices))
	assert.Equal(t, "Error generating speech: tts 503", res.Notices[0].Message)
	assert.Nil(t, res.Audio)
	assert.Equal(t, 2, st.Log.Len())
	require.NotNil(t, st.Reply)
	assert.Equal(t, "fine\n", st.Reply.Text)
	assert.Nil(t, st.Reply.Audio)
}

func TestGenerateStreamReportsFragments(t *testing.T) {
	bot := newTestBot(t, Options{Generator: replying("a", "b", "c")})
	st := newState(t)
	st.SetTranscript("abc?")

	var got []string
	res := bot.GenerateStream(context.Background(), st, func(f string) { got = append(got, f) })
	assert.True(t, res.Generated)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestGenerateHonoursTimeout(t *testing.T) {
	bot := newTestBot(t, Options{
		LLMTimeout: 20 * time.Millisecond,
		Generator: &MockGenerator{GenerateFunc: func(ctx context.Context, history []conversation.Turn, prompt string) (llm.Stream, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
	})
	st := newState(t)
	st.SetTranscript("slow question")

	res := bot.Generate(context.Background(), st)
	assert.False(t, res.Generated)
	assert.Contains(t, levels(res.Notices), LevelError)
}

func TestRenderCollapse(t *testing.T) {
	bot := newTestBot(t, Options{})
	st := newState(t)
	st.Log.Append(conversation.User, "a")
	st.Log.Append(conversation.User, "b")

	assert.Equal(t, []string{"User: a", "User: b"}, bot.Render(st, false))
	assert.Equal(t, []string{"User: a", "b"}, bot.Render(st, true))
}
