package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/WatchParty/internal/config"
	"github.com/dkeye/WatchParty/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MemoryWithoutRedis(t *testing.T) {
	cfg := &config.Config{
		Store: config.StoreConfig{Driver: "memory"},
		Chat:  config.ChatConfig{HistorySize: 10},
	}
	s, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &store.MemoryRoomStore{}, s.Rooms)
	assert.IsType(t, &store.MemoryChatStore{}, s.Chat)
}

func TestOpen_WrapsWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Store: config.StoreConfig{Driver: "memory"},
		Redis: config.RedisConfig{Enabled: true, Address: mr.Addr(), KeyPrefix: "wp", CacheTTL: time.Minute},
		Chat:  config.ChatConfig{HistorySize: 10, HistoryTTL: time.Hour},
	}
	s, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &store.CachedRoomStore{}, s.Rooms)
	assert.IsType(t, &store.RedisChatStore{}, s.Chat)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "etcd"}})
	assert.Error(t, err)
}
