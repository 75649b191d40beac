package app

import (
	"sync"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
)

// GroupManager keeps one connection group per room code.
type GroupManager struct {
	mu     sync.RWMutex
	groups map[domain.RoomCode]core.RoomGroup
}

func NewRoomManager() core.RoomManager {
	return &GroupManager{groups: make(map[domain.RoomCode]core.RoomGroup)}
}

func (f *GroupManager) GetOrCreate(code domain.RoomCode) core.RoomGroup {
	f.mu.RLock()
	g, ok := f.groups[code]
	f.mu.RUnlock()
	if ok {
		return g
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok = f.groups[code]; ok {
		return g
	}
	g = core.NewRoomGroup(code)
	f.groups[code] = g
	log.Debug().Str("module", "app.rooms").Str("room", string(code)).Msg("group created")
	return g
}

func (f *GroupManager) Get(code domain.RoomCode) (core.RoomGroup, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	g, ok := f.groups[code]
	return g, ok
}

func (f *GroupManager) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.groups))
	for code, g := range f.groups {
		out = append(out, core.RoomInfo{Code: code, MemberCount: g.MemberCount()})
	}
	return out
}

func (f *GroupManager) StopRoom(code domain.RoomCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, code)
}
