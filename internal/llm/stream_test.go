package llm

import (
	"errors"
	"io"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"VoiceChat/internal/conversation"
)

func fragments(parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func TestDrainAppendsNewlinePerFragment(t *testing.T) {
	text, err := Drain(FromSeq(fragments("Hi", " there")))
	require.NoError(t, err)
	assert.Equal(t, "Hi\n there\n", text)
}

func TestDrainEmptyStream(t *testing.T) {
	text, err := Drain(FromSeq(fragments()))
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestDrainMidStreamError(t *testing.T) {
	boom := errors.New("quota exceeded")
	seq := func(yield func(string, error) bool) {
		if !yield("partial", nil) {
			return
		}
		yield("", boom)
	}

	text, err := Drain(FromSeq(seq))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial\n", text)
}

func TestStreamIsSinglePass(t *testing.T) {
	s := FromSeq(fragments("a", "b"))

	first, err := Drain(s)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", first)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)

	second, err := Drain(s)
	require.NoError(t, err)
	assert.Equal(t, "", second)
}

func TestCloseStopsProducer(t *testing.T) {
	produced := 0
	seq := func(yield func(string, error) bool) {
		for {
			produced++
			if !yield("x", nil) {
				return
			}
		}
	}

	s := FromSeq(seq)
	_, err := s.Next()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, produced)
}

func TestDrainFuncReportsFragments(t *testing.T) {
	var seen []string
	text, err := DrainFunc(FromSeq(fragments("one", "two")), func(f string) {
		seen = append(seen, f)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, seen)
	assert.Equal(t, "one\ntwo\n", text)
}

func TestHistoryContents(t *testing.T) {
	log := conversation.NewLog()
	log.Append(conversation.User, "hello")
	log.Append(conversation.Bot, "hi\n")
	log.Append(conversation.User, "")

	contents := historyContents(log.Turns())
	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	require.Len(t, contents[1].Parts, 1)
	assert.Equal(t, "hi\n", contents[1].Parts[0].Text)
}

func TestNewGeminiDefaultsModel(t *testing.T) {
	g := NewGemini(GeminiOptions{})
	assert.Equal(t, DefaultGeminiModel, g.Model())
}
