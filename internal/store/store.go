// Package store persists room documents and chat history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
)

var (
	ErrNotFound      = errors.New("room not found in store")
	ErrDuplicateCode = errors.New("room code already taken")
)

// RoomStore is the durable room document store. Implementations return
// copies; callers never share memory with the store.
type RoomStore interface {
	// Create inserts a new room. ErrDuplicateCode on code collision.
	Create(ctx context.Context, room *domain.Room) error
	// Get returns ErrNotFound when no room has the code.
	Get(ctx context.Context, code domain.RoomCode) (*domain.Room, error)
	// Save overwrites an existing room. ErrNotFound when it is gone.
	Save(ctx context.Context, room *domain.Room) error
	Delete(ctx context.Context, code domain.RoomCode) error
	// ListIdle returns codes whose LastActivity is before the cutoff.
	ListIdle(ctx context.Context, before time.Time) ([]domain.RoomCode, error)
	Close() error
}

// ChatStore keeps a bounded, append-only message history per room.
type ChatStore interface {
	Append(ctx context.Context, msg *domain.Message) error
	// Recent returns up to limit newest messages, oldest first.
	Recent(ctx context.Context, code domain.RoomCode, limit int) ([]domain.Message, error)
	Clear(ctx context.Context, code domain.RoomCode) error
}
