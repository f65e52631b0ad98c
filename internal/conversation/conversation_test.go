package conversation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPreservesOrderAndCount(t *testing.T) {
	log := NewLog()
	for i := 0; i < 7; i++ {
		speaker := User
		if i%2 == 1 {
			speaker = Bot
		}
		log.Append(speaker, fmt.Sprintf("turn %d", i))
	}

	lines := log.Render()
	require.Len(t, lines, 7)
	for i, line := range lines {
		assert.Contains(t, line, fmt.Sprintf("turn %d", i))
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	log := NewLog()
	log.Append(User, "hello")
	log.Append(Bot, "hi there\n")

	first := log.Render()
	second := log.Render()
	assert.Equal(t, first, second)
}

func TestUserThenBot(t *testing.T) {
	log := NewLog()
	log.Append(User, "what time is it")
	log.Append(Bot, "noon")

	lines := log.Render()
	require.Len(t, lines, 2)
	assert.Equal(t, "User: what time is it", lines[0])
	assert.Equal(t, "Bot: noon", lines[1])
}

func TestEmptyLogRendersNothing(t *testing.T) {
	log := NewLog()
	assert.Empty(t, log.Render())
	_, ok := log.Last()
	assert.False(t, ok)
}

func TestDefaultRenderPrintsEveryLabel(t *testing.T) {
	log := NewLog()
	log.Append(User, "one")
	log.Append(User, "two")
	log.Append(Bot, "three")

	assert.Equal(t, []string{"User: one", "User: two", "Bot: three"}, log.Render())
}

func TestCollapseRepeats(t *testing.T) {
	log := NewLog()
	log.Append(User, "one")
	log.Append(User, "two")
	log.Append(Bot, "three")
	log.Append(Bot, "four")
	log.Append(User, "five")

	got := log.Render(WithCollapseRepeats())
	assert.Equal(t, []string{"User: one", "two", "Bot: three", "four", "User: five"}, got)

	// toggle form
	assert.Equal(t, log.Render(), log.Render(CollapseRepeats(false)))
}

func TestLinesRestartable(t *testing.T) {
	log := NewLog()
	log.Append(User, "a")
	log.Append(Bot, "b")

	seq := log.Lines()
	var first, second []string
	for line := range seq {
		first = append(first, line)
	}
	for line := range seq {
		second = append(second, line)
	}
	assert.Equal(t, first, second)

	// early break must not disturb later walks
	for range seq {
		break
	}
	assert.Len(t, log.Render(), 2)
}

func TestTurnsReturnsCopy(t *testing.T) {
	log := NewLog()
	log.Append(User, "original")

	turns := log.Turns()
	turns[0].Text = "mutated"

	last, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, "original", last.Text)
	assert.False(t, last.At.IsZero())
}

func TestParseSpeaker(t *testing.T) {
	s, err := ParseSpeaker("Bot")
	require.NoError(t, err)
	assert.Equal(t, Bot, s)

	_, err = ParseSpeaker("robot")
	assert.Error(t, err)

	assert.Equal(t, "👤", User.Marker())
	assert.Equal(t, "🤖", Bot.Marker())
}
