package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitions(t *testing.T) {
	allowed := []stateChange{
		{Disconnected, Connecting},
		{Connecting, Authenticated},
		{Connecting, Disconnected},
		{Authenticated, Joining},
		{Joining, Joined},
		{Joining, Joining},
		{Joining, Authenticated},
		{Joined, Joining},
		{Joined, Leaving},
		{Joined, Disconnected},
		{Leaving, Authenticated},
	}
	for _, c := range allowed {
		assert.True(t, canTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}

	rejected := []stateChange{
		{Disconnected, Joined},
		{Disconnected, Authenticated},
		{Disconnected, Disconnected},
		{Connecting, Joining},
		{Authenticated, Joined},
		{Leaving, Joined},
		{Leaving, Joining},
	}
	for _, c := range rejected {
		assert.False(t, canTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestSetStateRejectsIllegal(t *testing.T) {
	a := New(Options{URL: "ws://unused"}, Callbacks{})
	defer a.Close()

	a.mu.Lock()
	err := a.setStateLocked(Joined)
	a.unlockAndNotify()
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, Disconnected, a.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "joined", Joined.String())
	assert.Equal(t, "state(42)", State(42).String())
}
