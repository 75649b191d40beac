package orch

import (
	"context"

	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/wire"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) Play(ctx context.Context, sid core.SessionID, code domain.RoomCode, t float64) error {
	playing := true
	return o.hostControl(ctx, sid, code, wire.TypeVideoPlayed, t, &playing)
}

func (o *Orchestrator) Pause(ctx context.Context, sid core.SessionID, code domain.RoomCode, t float64) error {
	playing := false
	return o.hostControl(ctx, sid, code, wire.TypeVideoPaused, t, &playing)
}

func (o *Orchestrator) Seek(ctx context.Context, sid core.SessionID, code domain.RoomCode, t float64) error {
	return o.hostControl(ctx, sid, code, wire.TypeVideoSeeked, t, nil)
}

// hostControl applies a host-only transport change and relays it to the
// other connections. Non-hosts get ErrNotAuthorized and nothing changes.
func (o *Orchestrator) hostControl(ctx context.Context, sid core.SessionID, code domain.RoomCode, event string, t float64, playing *bool) error {
	cur, sess, err := o.joined(sid, code)
	if err != nil {
		return err
	}
	uid := sess.Meta().UserID
	r, err := o.Rooms.Mutate(ctx, cur, func(r *domain.Room) error {
		if !r.IsHost(uid) {
			return domain.ErrNotAuthorized
		}
		r.Apply(domain.RoomPatch{IsPlaying: playing, CurrentTime: &t})
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("event", event).Msg("playback control rejected")
		return err
	}
	o.broadcast(cur, sid, wire.Playback{
		Type:        event,
		RoomCode:    cur,
		CurrentTime: r.CurrentTime,
		ActorID:     uid,
	})
	return nil
}

// SelectVideo is open to every participant. It resets playback and sends
// the new state to everyone, the originator included.
func (o *Orchestrator) SelectVideo(ctx context.Context, sid core.SessionID, code domain.RoomCode, movie *domain.Movie) error {
	cur, sess, err := o.joined(sid, code)
	if err != nil {
		return err
	}
	if err := movie.Validate(); err != nil {
		return err
	}
	paused, zero := false, 0.0
	r, err := o.Rooms.UpdateRoom(ctx, cur, domain.RoomPatch{Movie: movie, IsPlaying: &paused, CurrentTime: &zero})
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("room", string(cur)).Str("user", string(sess.Meta().UserID)).Str("movie", movie.ID).Msg("video selected")
	o.broadcastState(r)
	return nil
}

func (o *Orchestrator) ToggleSubtitles(ctx context.Context, sid core.SessionID, code domain.RoomCode, enabled bool) error {
	cur, _, err := o.joined(sid, code)
	if err != nil {
		return err
	}
	r, err := o.Rooms.UpdateRoom(ctx, cur, domain.RoomPatch{SubtitlesEnabled: &enabled})
	if err != nil {
		return err
	}
	o.broadcastState(r)
	return nil
}

// ReportTime records a client's playhead as a hint. It never changes
// isPlaying and is not broadcast.
func (o *Orchestrator) ReportTime(ctx context.Context, sid core.SessionID, code domain.RoomCode, t float64) error {
	cur, _, err := o.joined(sid, code)
	if err != nil {
		return err
	}
	_, err = o.Rooms.Mutate(ctx, cur, func(r *domain.Room) error {
		if r.Movie == nil {
			return app.ErrNoChange
		}
		r.CurrentTime = t
		return nil
	})
	return err
}
