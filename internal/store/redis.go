package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/WatchParty/internal/config"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrCacheMiss = errors.New("cache miss")

// NewRedisClient connects and pings redis.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// CachedRoomStore puts a redis cache in front of a RoomStore. Reads fill it,
// writes go through it.
// Cache failures never fail a request; they fall through to the backing store.
type CachedRoomStore struct {
	next   RoomStore
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCachedRoomStore(next RoomStore, client *redis.Client, prefix string, ttl time.Duration) *CachedRoomStore {
	return &CachedRoomStore{next: next, client: client, prefix: prefix, ttl: ttl}
}

func (c *CachedRoomStore) key(code domain.RoomCode) string {
	return fmt.Sprintf("%s:room:%s", c.prefix, code)
}

// tombstone marks a deleted room so an in-flight read cannot bring it back.
const tombstone = "-"

func (c *CachedRoomStore) getCached(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	data, err := c.client.Get(ctx, c.key(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	if string(data) == tombstone {
		return nil, ErrNotFound
	}
	var r domain.Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &r, nil
}

// fill caches a document read from the backing store. It never replaces an
// existing entry, which belongs to a writer.
func (c *CachedRoomStore) fill(ctx context.Context, r *domain.Room) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.client.SetNX(ctx, c.key(r.Code), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("module", "store.cache").Str("room", string(r.Code)).Msg("cache fill failed")
	}
}

// put writes a committed document through to the cache. When that fails the
// entry is dropped so readers go to the backing store.
func (c *CachedRoomStore) put(ctx context.Context, r *domain.Room) {
	data, err := json.Marshal(r)
	if err != nil {
		c.invalidate(ctx, r.Code)
		return
	}
	c.set(ctx, r.Code, data)
}

func (c *CachedRoomStore) set(ctx context.Context, code domain.RoomCode, data []byte) {
	if err := c.client.Set(ctx, c.key(code), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("module", "store.cache").Str("room", string(code)).Msg("cache write failed")
		c.invalidate(ctx, code)
	}
}

func (c *CachedRoomStore) invalidate(ctx context.Context, code domain.RoomCode) {
	if err := c.client.Del(ctx, c.key(code)).Err(); err != nil {
		log.Warn().Err(err).Str("module", "store.cache").Str("room", string(code)).Msg("cache invalidate failed")
	}
}

func (c *CachedRoomStore) Create(ctx context.Context, room *domain.Room) error {
	if err := c.next.Create(ctx, room); err != nil {
		return err
	}
	c.put(ctx, room)
	return nil
}

func (c *CachedRoomStore) Get(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	r, err := c.getCached(ctx, code)
	if err == nil || errors.Is(err, ErrNotFound) {
		return r, err
	}
	if !errors.Is(err, ErrCacheMiss) {
		log.Warn().Err(err).Str("module", "store.cache").Str("room", string(code)).Msg("cache read failed")
	}
	r, err = c.next.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, r)
	return r, nil
}

func (c *CachedRoomStore) Save(ctx context.Context, room *domain.Room) error {
	if err := c.next.Save(ctx, room); err != nil {
		return err
	}
	c.put(ctx, room)
	return nil
}

func (c *CachedRoomStore) Delete(ctx context.Context, code domain.RoomCode) error {
	if err := c.next.Delete(ctx, code); err != nil {
		return err
	}
	c.set(ctx, code, []byte(tombstone))
	return nil
}

func (c *CachedRoomStore) ListIdle(ctx context.Context, before time.Time) ([]domain.RoomCode, error) {
	return c.next.ListIdle(ctx, before)
}

// Close closes the backing store. The redis client is shared and owned by the caller.
func (c *CachedRoomStore) Close() error { return c.next.Close() }

// RedisChatStore keeps chat history as a capped redis list per room.
type RedisChatStore struct {
	client *redis.Client
	prefix string
	size   int
	ttl    time.Duration
}

func NewRedisChatStore(client *redis.Client, prefix string, size int, ttl time.Duration) *RedisChatStore {
	return &RedisChatStore{client: client, prefix: prefix, size: size, ttl: ttl}
}

func (s *RedisChatStore) key(code domain.RoomCode) string {
	return fmt.Sprintf("%s:chat:%s", s.prefix, code)
}

func (s *RedisChatStore) Append(ctx context.Context, msg *domain.Message) error {
	if s.size <= 0 {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := s.key(msg.RoomCode)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.size), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return nil
}

func (s *RedisChatStore) Recent(ctx context.Context, code domain.RoomCode, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > s.size {
		limit = s.size
	}
	if limit <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.key(code), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read chat: %w", err)
	}
	out := make([]domain.Message, 0, len(raw))
	for _, item := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			log.Warn().Err(err).Str("module", "store.chat").Str("room", string(code)).Msg("skipping corrupt message")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *RedisChatStore) Clear(ctx context.Context, code domain.RoomCode) error {
	return s.client.Del(ctx, s.key(code)).Err()
}
