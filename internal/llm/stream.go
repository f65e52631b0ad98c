// Package llm produces bot replies from a language model.
package llm

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"

	"VoiceChat/internal/conversation"
)

// ErrNoGenerator is returned when no model backend is configured
var ErrNoGenerator = errors.New("no generator configured")

// Generator produces a streamed reply to prompt given the prior turns
type Generator interface {
	Generate(ctx context.Context, history []conversation.Turn, prompt string) (Stream, error)
}

// Stream yields reply fragments once, in order.
// Next returns io.EOF when the reply is complete and on every call after.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Drain consumes the stream, appending one newline after every fragment.
// On a mid-stream failure it returns what was assembled so far with the error.
func Drain(s Stream) (string, error) {
	return DrainFunc(s, nil)
}

// DrainFunc is Drain with a callback invoked for each fragment as it arrives
func DrainFunc(s Stream, onFragment func(string)) (string, error) {
	defer s.Close()

	var b strings.Builder
	for {
		fragment, err := s.Next()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(fragment)
		b.WriteByte('\n')
		if onFragment != nil {
			onFragment(fragment)
		}
	}
}

// seqStream adapts a push iterator into a pull-based Stream
type seqStream struct {
	next func() (string, error, bool)
	stop func()
	done bool
}

// FromSeq wraps a fragment sequence as a single-pass Stream
func FromSeq(seq iter.Seq2[string, error]) Stream {
	next, stop := iter.Pull2(seq)
	return &seqStream{next: next, stop: stop}
}

func (s *seqStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	fragment, err, ok := s.next()
	if !ok {
		s.finish()
		return "", io.EOF
	}
	if err != nil {
		s.finish()
		return "", err
	}
	return fragment, nil
}

func (s *seqStream) Close() error {
	s.finish()
	return nil
}

func (s *seqStream) finish() {
	if !s.done {
		s.done = true
		s.stop()
	}
}
