package app

import (
	"context"
	"sync"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	RoomCode domain.RoomCode
	Session  core.MemberSession
	Cancel   context.CancelFunc
}

// Registry tracks live connections: which identity they carry and which
// room, if any, they are attached to.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(sess.Meta().UserID)).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomCode, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.RoomCode == "" {
		return "", nil, false
	}
	return entry.RoomCode, entry.Session, true
}

func (r *Registry) UpdateRoom(sid core.SessionID, code domain.RoomCode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.RoomCode = code
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(code)).Msg("updated room")
	return true
}

func (r *Registry) RemoveRoom(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sid]; ok {
		entry.RoomCode = ""
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed room association")
}

type SessionSnap struct {
	SID     core.SessionID
	Session core.MemberSession
}

func (r *Registry) MembersOfRoom(code domain.RoomCode) []SessionSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.RoomCode == code {
			out = append(out, SessionSnap{SID: sid, Session: e.Session})
		}
	}
	return out
}

// FindSID returns the connection id a member session is bound under.
func (r *Registry) FindSID(sess core.MemberSession) (core.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid, e := range r.sessions {
		if e.Session == sess {
			return sid, true
		}
	}
	return "", false
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
