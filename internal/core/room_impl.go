package core

import (
	"sync"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomGroup is a threadsafe in-memory connection group.
// It never closes adapter-owned resources.
type roomGroup struct {
	code   domain.RoomCode
	mu     sync.RWMutex
	bySID  map[SessionID]MemberSession
	byUser map[domain.UserID]map[SessionID]struct{}
}

func NewRoomGroup(code domain.RoomCode) RoomGroup {
	return &roomGroup{
		code:   code,
		bySID:  make(map[SessionID]MemberSession),
		byUser: make(map[domain.UserID]map[SessionID]struct{}),
	}
}

func (r *roomGroup) Code() domain.RoomCode { return r.code }

func (r *roomGroup) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomGroup) HasUser(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[uid]) > 0
}

func (r *roomGroup) AddMember(sid SessionID, ms MemberSession) bool {
	u := ms.Meta().UserID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		return false
	}
	r.bySID[sid] = ms
	if r.byUser[u] == nil {
		r.byUser[u] = make(map[SessionID]struct{})
	}
	r.byUser[u][sid] = struct{}{}
	log.Info().Str("module", "core.room").Str("room", string(r.code)).Str("sid", string(sid)).Str("user", string(u)).Msg("member added")
	return true
}

func (r *roomGroup) RemoveMember(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return false
	}
	u := ms.Meta().UserID
	delete(r.byUser[u], sid)
	if len(r.byUser[u]) == 0 {
		delete(r.byUser, u)
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.code)).Str("sid", string(sid)).Msg("member removed")
	return true
}

func (r *roomGroup) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if from != "" && sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.code)).Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomGroup) SendEach(from SessionID, render func(MemberSession) Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if from != "" && sid == from {
			continue
		}
		data := render(m)
		if data == nil {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	return res
}
