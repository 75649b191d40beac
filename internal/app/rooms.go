package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/store"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

const DefaultCodeRetries = 10

// ErrNoChange lets a Mutate callback skip the write.
var ErrNoChange = errors.New("no change")

// Rooms is the session registry: the single writer of room documents.
// Every read-modify-write of one room runs under that room's lock.
type Rooms struct {
	store       store.RoomStore
	locks       *keyedMutex
	codeRetries int

	Clock   func() time.Time
	NewCode func() (string, error)
}

func NewRooms(st store.RoomStore, codeRetries int) *Rooms {
	if codeRetries < 1 {
		codeRetries = DefaultCodeRetries
	}
	return &Rooms{
		store:       st,
		locks:       newKeyedMutex(),
		codeRetries: codeRetries,
		Clock:       time.Now,
		NewCode: func() (string, error) {
			return gonanoid.Generate(domain.RoomCodeAlphabet, domain.RoomCodeLength)
		},
	}
}

func (s *Rooms) now() time.Time { return s.Clock().UTC() }

// CreateRoom allocates a fresh code. The host is not joined by creation.
func (s *Rooms) CreateRoom(ctx context.Context, host domain.UserID, movie *domain.Movie, isPrivate, subtitles bool) (*domain.Room, error) {
	if host == "" {
		return nil, domain.ErrAuth
	}
	if movie != nil {
		if err := movie.Validate(); err != nil {
			return nil, err
		}
	}
	now := s.now()
	for attempt := 0; attempt < s.codeRetries; attempt++ {
		code, err := s.NewCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		room := &domain.Room{
			Code:             domain.RoomCode(code),
			HostID:           host,
			Movie:            movie.Clone(),
			IsPrivate:        isPrivate,
			SubtitlesEnabled: subtitles,
			Participants:     []domain.Participant{},
			CreatedAt:        now,
			LastActivity:     now,
		}
		room.Normalize()
		err = s.store.Create(ctx, room)
		if errors.Is(err, store.ErrDuplicateCode) {
			log.Debug().Str("module", "app.rooms").Str("code", code).Int("attempt", attempt+1).Msg("room code collision")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}
		log.Info().Str("module", "app.rooms").Str("room", code).Str("host", string(host)).Msg("room created")
		return room, nil
	}
	log.Error().Str("module", "app.rooms").Int("attempts", s.codeRetries).Msg("room code space exhausted")
	return nil, domain.ErrCodeSpaceExhausted
}

func (s *Rooms) GetRoom(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	r, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return r, nil
}

// Mutate runs fn on a private copy of the room under the room's lock and
// persists the result. fn returning ErrNoChange skips the write; any other
// error aborts with nothing persisted.
func (s *Rooms) Mutate(ctx context.Context, code domain.RoomCode, fn func(r *domain.Room) error) (*domain.Room, error) {
	return s.MutateThen(ctx, code, fn, nil)
}

// MutateThen is Mutate with then called on the committed room before the
// lock is released, so nothing else can change the room in between.
func (s *Rooms) MutateThen(ctx context.Context, code domain.RoomCode, fn func(r *domain.Room) error, then func(r *domain.Room)) (*domain.Room, error) {
	unlock := s.locks.Lock(string(code))
	defer unlock()

	r, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if err := fn(r); err != nil {
		if !errors.Is(err, ErrNoChange) {
			return nil, err
		}
	} else {
		r.Normalize()
		r.Touch(s.now())
		if err := s.store.Save(ctx, r); err != nil {
			return nil, mapStoreErr(err)
		}
	}
	if then != nil {
		then(r)
	}
	return r, nil
}

// UpdateRoom merges patch into the stored room. HostID is not patchable.
func (s *Rooms) UpdateRoom(ctx context.Context, code domain.RoomCode, patch domain.RoomPatch) (*domain.Room, error) {
	if patch.Movie != nil {
		if err := patch.Movie.Validate(); err != nil {
			return nil, err
		}
	}
	return s.Mutate(ctx, code, func(r *domain.Room) error {
		r.Apply(patch)
		return nil
	})
}

func (s *Rooms) DeleteRoom(ctx context.Context, code domain.RoomCode) error {
	unlock := s.locks.Lock(string(code))
	defer unlock()
	if err := s.store.Delete(ctx, code); err != nil {
		return mapStoreErr(err)
	}
	log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room deleted")
	return nil
}

// ExpireIdle deletes rooms untouched for longer than ttl and returns their
// codes. Rooms for which keep reports true are left alone.
func (s *Rooms) ExpireIdle(ctx context.Context, ttl time.Duration, keep func(domain.RoomCode) bool) ([]domain.RoomCode, error) {
	cutoff := s.now().Add(-ttl)
	codes, err := s.store.ListIdle(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list idle rooms: %w", err)
	}
	var expired []domain.RoomCode
	for _, code := range codes {
		if keep != nil && keep(code) {
			continue
		}
		ok, err := s.expireOne(ctx, code, cutoff)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.rooms").Str("room", string(code)).Msg("expire failed")
			continue
		}
		if ok {
			expired = append(expired, code)
		}
	}
	return expired, nil
}

func (s *Rooms) expireOne(ctx context.Context, code domain.RoomCode, cutoff time.Time) (bool, error) {
	unlock := s.locks.Lock(string(code))
	defer unlock()
	r, err := s.store.Get(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !r.LastActivity.Before(cutoff) {
		return false, nil
	}
	if err := s.store.Delete(ctx, code); err != nil {
		return false, err
	}
	log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room expired")
	return true, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrRoomNotFound, err)
	}
	return err
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
