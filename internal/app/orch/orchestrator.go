package orch

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/store"
	"github.com/dkeye/WatchParty/internal/wire"
	"github.com/rs/zerolog/log"
)

// Limiter admits or rejects an action of a user.
type Limiter interface {
	Allow(uid domain.UserID) bool
}

// Orchestrator ties live connections (Registry, Groups) to the persisted
// room documents (Rooms). It owns membership, playback control and chat.
type Orchestrator struct {
	Registry *app.Registry
	Groups   core.RoomManager
	Rooms    *app.Rooms
	Chat     store.ChatStore
	Policy   app.Policy
	// ChatLimit may be nil for no limit.
	ChatLimit Limiter

	AwayGrace   time.Duration
	IdleTTL     time.Duration
	HistorySize int
	Clock       func() time.Time

	mu   sync.Mutex
	away map[awayKey]time.Time
}

type awayKey struct {
	code domain.RoomCode
	uid  domain.UserID
}

func (o *Orchestrator) now() time.Time {
	if o.Clock == nil {
		return time.Now().UTC()
	}
	return o.Clock().UTC()
}

// session returns the identity-bearing session of a live connection.
func (o *Orchestrator) session(sid core.SessionID) (core.MemberSession, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, domain.ErrConnection
	}
	return sess, nil
}

// joined resolves the room a connection is attached to. A non-empty code
// must match it.
func (o *Orchestrator) joined(sid core.SessionID, code domain.RoomCode) (domain.RoomCode, core.MemberSession, error) {
	cur, sess, ok := o.Registry.RoomOf(sid)
	if !ok || (code != "" && code != cur) {
		return "", nil, domain.ErrNotJoined
	}
	return cur, sess, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, r *domain.Room, viewer domain.UserID) domain.RoomSnapshot {
	snap := r.Snapshot(viewer)
	if o.Chat != nil && o.HistorySize > 0 {
		msgs, err := o.Chat.Recent(ctx, r.Code, o.HistorySize)
		if err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("room", string(r.Code)).Msg("chat history unavailable")
		}
		snap.Messages = msgs
	}
	return snap
}

// broadcast sends v to every connection of the room except from.
func (o *Orchestrator) broadcast(code domain.RoomCode, from core.SessionID, v any) {
	group, ok := o.Groups.Get(code)
	if !ok {
		return
	}
	data, err := wire.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode event")
		return
	}
	o.handleDropped(group, group.Broadcast(from, data))
}

// broadcastState sends every connection its own view of r.
func (o *Orchestrator) broadcastState(r *domain.Room) {
	group, ok := o.Groups.Get(r.Code)
	if !ok {
		return
	}
	res := group.SendEach("", func(m core.MemberSession) core.Frame {
		data, err := wire.Encode(wire.RoomState{
			Type:         wire.TypeRoomStateUpdate,
			RoomSnapshot: r.Snapshot(m.Meta().UserID),
		})
		if err != nil {
			return nil
		}
		return data
	})
	o.handleDropped(group, res)
}

func (o *Orchestrator) handleDropped(group core.RoomGroup, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(group, slow) {
		case app.KickMember:
			if sid, ok := o.Registry.FindSID(slow); ok {
				log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("room", string(group.Code())).Msg("kicking slow member")
				o.KickBySID(sid)
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// KickBySID detaches a connection and closes it. The roster entry stays;
// the client resyncs from the snapshot when it rejoins.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.detach(sid)
	o.Registry.Cancel(sid)
}

// detach removes sid from its group and marks the user away when this was
// their last connection in the room.
func (o *Orchestrator) detach(sid core.SessionID) {
	code, sess, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	o.Registry.RemoveRoom(sid)
	group, ok := o.Groups.Get(code)
	if !ok {
		return
	}
	group.RemoveMember(sid)
	uid := sess.Meta().UserID
	if !group.HasUser(uid) {
		o.markAway(code, uid)
	}
}

func (o *Orchestrator) markAway(code domain.RoomCode, uid domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.away == nil {
		o.away = make(map[awayKey]time.Time)
	}
	k := awayKey{code, uid}
	if _, ok := o.away[k]; !ok {
		o.away[k] = o.now()
	}
}

func (o *Orchestrator) clearAway(code domain.RoomCode, uid domain.UserID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.away, awayKey{code, uid})
}

// OnDisconnect handles a dropped transport. The user stays on the roster
// as temporarily away until they return or the sweep removes them.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.detach(sid)
	o.Registry.Unbind(sid)
}
