package store

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
)

type MemoryRoomStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]*domain.Room
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{rooms: make(map[domain.RoomCode]*domain.Room)}
}

func (s *MemoryRoomStore) Create(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return ErrDuplicateCode
	}
	s.rooms[room.Code] = room.Clone()
	return nil
}

func (s *MemoryRoomStore) Get(_ context.Context, code domain.RoomCode) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryRoomStore) Save(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; !ok {
		return ErrNotFound
	}
	s.rooms[room.Code] = room.Clone()
	return nil
}

func (s *MemoryRoomStore) Delete(_ context.Context, code domain.RoomCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	return nil
}

func (s *MemoryRoomStore) ListIdle(_ context.Context, before time.Time) ([]domain.RoomCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RoomCode
	for code, r := range s.rooms {
		if r.LastActivity.Before(before) {
			out = append(out, code)
		}
	}
	return out, nil
}

func (s *MemoryRoomStore) Close() error { return nil }

// MemoryChatStore keeps the last size messages of each room.
type MemoryChatStore struct {
	mu    sync.Mutex
	size  int
	rooms map[domain.RoomCode][]domain.Message
}

func NewMemoryChatStore(size int) *MemoryChatStore {
	return &MemoryChatStore{size: size, rooms: make(map[domain.RoomCode][]domain.Message)}
}

func (s *MemoryChatStore) Append(_ context.Context, msg *domain.Message) error {
	if s.size <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.rooms[msg.RoomCode], *msg)
	if len(h) > s.size {
		h = append([]domain.Message(nil), h[len(h)-s.size:]...)
	}
	s.rooms[msg.RoomCode] = h
	return nil
}

func (s *MemoryChatStore) Recent(_ context.Context, code domain.RoomCode, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.rooms[code]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]domain.Message, len(h))
	copy(out, h)
	return out, nil
}

func (s *MemoryChatStore) Clear(_ context.Context, code domain.RoomCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	return nil
}
