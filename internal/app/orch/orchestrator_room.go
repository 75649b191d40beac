package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/wire"
	"github.com/rs/zerolog/log"
)

// Join attaches the connection to a room and returns the joiner's snapshot.
// Joining the room the connection is already in is a read: no roster write
// and no broadcast.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, code domain.RoomCode) (domain.RoomSnapshot, error) {
	return o.join(ctx, sid, code, nil)
}

// JoinAndReply is Join that also queues room-joined on the connection. The
// reply is queued before any event of a later change to the room, so the
// joiner never misses one.
func (o *Orchestrator) JoinAndReply(ctx context.Context, sid core.SessionID, code domain.RoomCode, ref int64) (domain.RoomSnapshot, error) {
	return o.join(ctx, sid, code, &ref)
}

func (o *Orchestrator) join(ctx context.Context, sid core.SessionID, code domain.RoomCode, ref *int64) (domain.RoomSnapshot, error) {
	sess, err := o.session(sid)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	id := sess.Meta()

	var snap domain.RoomSnapshot
	reply := func(r *domain.Room) {
		snap = o.snapshot(ctx, r, id.UserID)
		if ref == nil {
			return
		}
		data, err := wire.Encode(wire.RoomState{Type: wire.TypeRoomJoined, Ref: *ref, RoomSnapshot: snap})
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Msg("encode room-joined")
			return
		}
		if err := sess.Signal().TrySend(data); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("room-joined dropped")
		}
	}

	if cur, _, ok := o.Registry.RoomOf(sid); ok {
		if cur == code {
			_, err := o.Rooms.MutateThen(ctx, code, func(*domain.Room) error { return app.ErrNoChange }, reply)
			if err != nil {
				return domain.RoomSnapshot{}, err
			}
			return snap, nil
		}
		if err := o.Leave(ctx, sid, cur); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room", string(cur)).Msg("leave before join failed")
		}
	}

	added, wasLive := false, false
	_, err = o.Rooms.MutateThen(ctx, code, func(r *domain.Room) error {
		if r.HasParticipant(id.UserID) {
			return app.ErrNoChange
		}
		added = r.AddParticipant(domain.NewParticipant(id, o.now()))
		return nil
	}, func(r *domain.Room) {
		// The reply goes out first, then the connection starts receiving
		// room events. Both happen before the next change can commit.
		reply(r)
		group := o.Groups.GetOrCreate(code)
		wasLive = group.HasUser(id.UserID)
		group.AddMember(sid, sess)
		o.Registry.UpdateRoom(sid, code)
	})
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	o.clearAway(code, id.UserID)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("user", string(id.UserID)).Str("room", string(code)).Bool("new_participant", added).Msg("joined room")

	if !wasLive {
		o.broadcast(code, sid, wire.Participant{
			Type:     wire.TypeParticipantJoined,
			RoomCode: code,
			UserID:   id.UserID,
			Username: id.Username,
		})
	}
	if added {
		o.systemMessage(ctx, code, fmt.Sprintf("%s joined the room", id.Username))
	}
	return snap, nil
}

// Leave detaches the connection and, when it was the user's last one in
// the room, removes them from the roster. Leaving a room the connection is
// not in is a no-op.
func (o *Orchestrator) Leave(ctx context.Context, sid core.SessionID, code domain.RoomCode) error {
	cur, sess, ok := o.Registry.RoomOf(sid)
	if !ok || (code != "" && cur != code) {
		return nil
	}
	o.Registry.RemoveRoom(sid)
	uid := sess.Meta().UserID
	if group, ok := o.Groups.Get(cur); ok {
		group.RemoveMember(sid)
		if group.HasUser(uid) {
			return nil
		}
	}
	o.clearAway(cur, uid)
	return o.removeParticipant(ctx, cur, sess.Meta())
}

func (o *Orchestrator) removeParticipant(ctx context.Context, code domain.RoomCode, id *domain.Identity) error {
	removed := false
	_, err := o.Rooms.Mutate(ctx, code, func(r *domain.Room) error {
		if !r.RemoveParticipant(id.UserID) {
			return app.ErrNoChange
		}
		removed = true
		return nil
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if removed {
		log.Info().Str("module", "orch").Str("user", string(id.UserID)).Str("room", string(code)).Msg("left room")
		o.broadcast(code, "", wire.Participant{
			Type:     wire.TypeParticipantLeft,
			RoomCode: code,
			UserID:   id.UserID,
			Username: id.Username,
		})
		o.systemMessage(ctx, code, fmt.Sprintf("%s left the room", id.Username))
	}
	return nil
}

// CreateRoom makes id the host of a new room. It does not join it.
func (o *Orchestrator) CreateRoom(ctx context.Context, id *domain.Identity, movie *domain.Movie, isPrivate, subtitles bool) (*domain.Room, error) {
	return o.Rooms.CreateRoom(ctx, id.UserID, movie, isPrivate, subtitles)
}

// DeleteRoom closes a room for everyone. Host only.
func (o *Orchestrator) DeleteRoom(ctx context.Context, id *domain.Identity, code domain.RoomCode) error {
	r, err := o.Rooms.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	if !r.IsHost(id.UserID) {
		return domain.ErrNotAuthorized
	}
	if err := o.Rooms.DeleteRoom(ctx, code); err != nil {
		return err
	}
	o.closeRoom(ctx, code)
	return nil
}

// closeRoom tells every attached connection the room is gone and detaches them.
func (o *Orchestrator) closeRoom(ctx context.Context, code domain.RoomCode) {
	o.broadcast(code, "", wire.RoomEvent{Type: wire.TypeRoomClosed, RoomCode: code})
	for _, snap := range o.Registry.MembersOfRoom(code) {
		o.Registry.RemoveRoom(snap.SID)
	}
	o.Groups.StopRoom(code)

	o.mu.Lock()
	for k := range o.away {
		if k.code == code {
			delete(o.away, k)
		}
	}
	o.mu.Unlock()

	if o.Chat != nil {
		if err := o.Chat.Clear(ctx, code); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("room", string(code)).Msg("clear chat failed")
		}
	}
	log.Info().Str("module", "orch").Str("room", string(code)).Msg("room closed")
}

// SweepInactive drops roster entries of users away longer than AwayGrace
// and expires rooms idle longer than IdleTTL that have no live connection.
func (o *Orchestrator) SweepInactive(ctx context.Context) {
	now := o.now()
	var due []awayKey
	o.mu.Lock()
	for k, since := range o.away {
		if now.Sub(since) >= o.AwayGrace {
			due = append(due, k)
		}
	}
	o.mu.Unlock()

	for _, k := range due {
		if group, ok := o.Groups.Get(k.code); ok && group.HasUser(k.uid) {
			o.clearAway(k.code, k.uid)
			continue
		}
		o.clearAway(k.code, k.uid)
		id := &domain.Identity{UserID: k.uid, Username: string(k.uid)}
		if r, err := o.Rooms.GetRoom(ctx, k.code); err == nil {
			for _, p := range r.Participants {
				if p.UserID == k.uid {
					id.Username = p.Username
				}
			}
		}
		if err := o.removeParticipant(ctx, k.code, id); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("room", string(k.code)).Str("user", string(k.uid)).Msg("sweep remove failed")
		}
	}

	if o.IdleTTL <= 0 {
		return
	}
	expired, err := o.Rooms.ExpireIdle(ctx, o.IdleTTL, func(code domain.RoomCode) bool {
		g, ok := o.Groups.Get(code)
		return ok && g.MemberCount() > 0
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("expire idle rooms failed")
		return
	}
	for _, code := range expired {
		o.closeRoom(ctx, code)
	}
}

// RunSweeper calls SweepInactive, then each of also, every interval until
// ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration, also ...func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.SweepInactive(ctx)
			for _, fn := range also {
				fn()
			}
		}
	}
}
