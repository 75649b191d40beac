package store

import (
	"context"
	"fmt"

	"github.com/dkeye/WatchParty/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Stores bundles the room and chat stores selected by config.
type Stores struct {
	Rooms RoomStore
	Chat  ChatStore
	redis *redis.Client
}

// Open builds the configured room store, wraps it with the redis cache when
// redis is enabled, and picks the matching chat history backend.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	var rooms RoomStore
	switch cfg.Store.Driver {
	case "memory":
		rooms = NewMemoryRoomStore()
	case "sqlite", "postgres", "mysql":
		db, err := OpenDatabase(cfg.Store.Driver, cfg.Database)
		if err != nil {
			return nil, err
		}
		gs, err := NewGormRoomStore(db)
		if err != nil {
			return nil, err
		}
		rooms = gs
	case "mongo":
		ms, err := NewMongoRoomStore(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		rooms = ms
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	s := &Stores{Rooms: rooms}
	if !cfg.Redis.Enabled {
		s.Chat = NewMemoryChatStore(cfg.Chat.HistorySize)
		log.Info().Str("module", "store").Str("driver", cfg.Store.Driver).Msg("stores ready")
		return s, nil
	}

	client, err := NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		_ = rooms.Close()
		return nil, err
	}
	s.redis = client
	s.Rooms = NewCachedRoomStore(rooms, client, cfg.Redis.KeyPrefix, cfg.Redis.CacheTTL)
	s.Chat = NewRedisChatStore(client, cfg.Redis.KeyPrefix, cfg.Chat.HistorySize, cfg.Chat.HistoryTTL)
	log.Info().Str("module", "store").Str("driver", cfg.Store.Driver).Str("redis", cfg.Redis.Address).Msg("stores ready")
	return s, nil
}

func (s *Stores) Close() error {
	err := s.Rooms.Close()
	if s.redis != nil {
		if rerr := s.redis.Close(); err == nil {
			err = rerr
		}
	}
	return err
}
