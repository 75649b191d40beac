package signal

import (
	"testing"
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRoomRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRoomRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"), "limits are per user")

	now = now.Add(1001 * time.Millisecond)
	assert.True(t, rl.Allow("alice"))
}

func TestRoomRateLimiter_Prune(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRoomRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }
	rl.Allow("alice")

	now = now.Add(2 * time.Second)
	rl.Prune()
	assert.Empty(t, rl.history)
}

func TestParseCode(t *testing.T) {
	code, err := parseCode(" abc123 ")
	assert.NoError(t, err)
	assert.Equal(t, domain.RoomCode("ABC123"), code)

	code, err = parseCode("")
	assert.NoError(t, err)
	assert.Empty(t, code)

	_, err = parseCode("nope")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}
