package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatStores(t *testing.T, size int) map[string]store.ChatStore {
	return map[string]store.ChatStore{
		"memory": store.NewMemoryChatStore(size),
		"redis":  store.NewRedisChatStore(newRedis(t), "test", size, time.Hour),
	}
}

func TestChatStore_CapsHistory(t *testing.T) {
	for name, s := range chatStores(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			from := &domain.Identity{UserID: "u1", Username: "alice"}
			for i := 0; i < 5; i++ {
				m, err := domain.NewMessage("ROOM01", from, fmt.Sprintf("msg %d", i), time.Now())
				require.NoError(t, err)
				require.NoError(t, s.Append(ctx, m))
			}

			got, err := s.Recent(ctx, "ROOM01", 10)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "msg 2", got[0].Content)
			assert.Equal(t, "msg 4", got[2].Content)

			got, err = s.Recent(ctx, "ROOM01", 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "msg 4", got[0].Content)

			other, err := s.Recent(ctx, "ROOM02", 10)
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestChatStore_Clear(t *testing.T) {
	for name, s := range chatStores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, domain.NewSystemMessage("ROOM01", "alice joined", time.Now())))
			require.NoError(t, s.Clear(ctx, "ROOM01"))

			got, err := s.Recent(ctx, "ROOM01", 10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}
