package session

import (
	"sync"
	"time"

	"VoiceChat/internal/conversation"
)

// Recording is the last captured microphone clip
type Recording struct {
	Data        []byte
	ContentType string
}

// Reply is the last bot answer and its synthesized speech
type Reply struct {
	Text  string
	Audio []byte // nil when synthesis failed
}

// State is everything one browser session owns.
// Handlers hold Lock for the whole of an action so actions never overlap.
type State struct {
	mu sync.Mutex

	ID        string
	StartTime time.Time
	Log       *conversation.Log

	// Audio is nil until something is recorded
	Audio *Recording
	// Transcript is nil until a conversion has run; "" after a failed one
	Transcript *string
	Reply      *Reply

	lastActive time.Time
	ended      bool
}

func newState(id string, now time.Time) *State {
	return &State{
		ID:         id,
		StartTime:  now,
		Log:        conversation.NewLog(),
		lastActive: now,
	}
}

// Lock serializes actions on the session
func (s *State) Lock() {
	s.mu.Lock()
}

// Unlock releases the session
func (s *State) Unlock() {
	s.mu.Unlock()
}

// HasTranscript reports whether a non-empty transcript is available
func (s *State) HasTranscript() bool {
	return s.Transcript != nil && *s.Transcript != ""
}

// SetTranscript records the result of a conversion
func (s *State) SetTranscript(text string) {
	s.Transcript = &text
}

// Ended reports whether the store has discarded the session.
// Call it with the lock held.
func (s *State) Ended() bool {
	return s.ended
}
