package conversation

import (
	"fmt"
	"iter"
	"time"
)

// Speaker identifies who produced a turn
type Speaker int

const (
	User Speaker = iota
	Bot
)

// Label returns the display label used when rendering a turn
func (s Speaker) Label() string {
	switch s {
	case User:
		return "User"
	case Bot:
		return "Bot"
	default:
		return fmt.Sprintf("Speaker(%d)", int(s))
	}
}

// Marker returns the role glyph shown next to a turn in the web UI
func (s Speaker) Marker() string {
	switch s {
	case User:
		return "👤"
	case Bot:
		return "🤖"
	default:
		return "?"
	}
}

func (s Speaker) String() string {
	return s.Label()
}

// ParseSpeaker maps a label back to a Speaker
func ParseSpeaker(label string) (Speaker, error) {
	switch label {
	case "User":
		return User, nil
	case "Bot":
		return Bot, nil
	default:
		return 0, fmt.Errorf("unknown speaker: %q", label)
	}
}

// Turn is one utterance in the conversation
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Log is the ordered, append-only record of turns for one session.
// It is not safe for concurrent use; callers serialize access per session.
type Log struct {
	turns []Turn
	now   func() time.Time
}

// NewLog creates an empty log
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append adds a turn to the end of the log. Text is stored as given.
func (l *Log) Append(speaker Speaker, text string) {
	l.turns = append(l.turns, Turn{
		Speaker: speaker,
		Text:    text,
		At:      l.now(),
	})
}

// Len returns the number of turns
func (l *Log) Len() int {
	return len(l.turns)
}

// Turns returns a copy of the recorded turns in insertion order
func (l *Log) Turns() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Last returns the most recent turn
func (l *Log) Last() (Turn, bool) {
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

type renderOptions struct {
	collapseRepeats bool
}

// RenderOption adjusts how a log is rendered
type RenderOption func(*renderOptions)

// WithCollapseRepeats drops the speaker label from a turn whose speaker
// matches the turn directly before it.
func WithCollapseRepeats() RenderOption {
	return func(o *renderOptions) {
		o.collapseRepeats = true
	}
}

// CollapseRepeats returns WithCollapseRepeats when enabled is true
func CollapseRepeats(enabled bool) RenderOption {
	return func(o *renderOptions) {
		o.collapseRepeats = enabled
	}
}

// Lines walks the log from the start, yielding one display line per turn.
// Each call to the returned sequence starts a fresh traversal.
func (l *Log) Lines(opts ...RenderOption) iter.Seq[string] {
	return Lines(l.turns, opts...)
}

// Render returns every display line of the log in insertion order
func (l *Log) Render(opts ...RenderOption) []string {
	lines := make([]string, 0, len(l.turns))
	for line := range l.Lines(opts...) {
		lines = append(lines, line)
	}
	return lines
}

// Lines renders an arbitrary turn slice with the same rule as Log.Render.
// Archived sessions are rendered through it.
func Lines(turns []Turn, opts ...RenderOption) iter.Seq[string] {
	var o renderOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(string) bool) {
		for i, t := range turns {
			line := FormatLine(t)
			if o.collapseRepeats && i > 0 && turns[i-1].Speaker == t.Speaker {
				line = t.Text
			}
			if !yield(line) {
				return
			}
		}
	}
}

// FormatLine renders a single turn as "{label}: {text}"
func FormatLine(t Turn) string {
	return fmt.Sprintf("%s: %s", t.Speaker.Label(), t.Text)
}
