package agent

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/wire"
	"github.com/rs/zerolog/log"
)

func (a *Agent) dispatch(data []byte) {
	typ, err := wire.TypeOf(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "agent").Msg("bad frame")
		return
	}
	switch typ {
	case wire.TypeRoomJoined:
		a.onJoined(data)
	case wire.TypeRoomStateUpdate:
		a.onStateUpdate(data)
	case wire.TypeVideoPlayed, wire.TypeVideoPaused, wire.TypeVideoSeeked:
		a.onPlayback(typ, data)
	case wire.TypeParticipantJoined, wire.TypeParticipantLeft:
		a.onParticipant(typ, data)
	case wire.TypeChatMessage:
		a.onChat(data)
	case wire.TypeRoomCreated:
		a.onCreated(data)
	case wire.TypeRoomLeft:
		a.onLeft(data)
	case wire.TypeRoomClosed:
		a.onClosed(data)
	case wire.TypeError:
		a.onError(data)
	case wire.TypePong, wire.TypeWhoAmI:
	default:
		log.Debug().Str("module", "agent").Str("type", typ).Msg("unhandled event")
	}
}

func decode(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "agent").Msg("bad event payload")
		return false
	}
	return true
}

// onJoined applies a snapshot only if it answers the newest join.
func (a *Agent) onJoined(data []byte) {
	var ev wire.RoomState
	if !decode(data, &ev) {
		return
	}
	a.mu.Lock()
	w := a.takeLocked(ev.Ref)
	if ev.Ref != a.gen || ev.RoomCode != a.code || a.state != Joining {
		a.mu.Unlock()
		log.Debug().Str("module", "agent").Int64("ref", ev.Ref).Str("room", string(ev.RoomCode)).Msg("stale room-joined discarded")
		if w != nil {
			w <- reply{err: ErrSuperseded}
		}
		return
	}
	snap := ev.RoomSnapshot
	a.room = &snap
	a.authTime = snap.CurrentTime
	_ = a.setStateLocked(Joined)
	out := copySnapshot(a.room)
	a.unlockAndNotify()

	a.reconcile(out.CurrentTime, &out.IsPlaying)
	a.emitRoom(out)
	if w != nil {
		w <- reply{snap: out}
	}
}

func (a *Agent) onStateUpdate(data []byte) {
	var ev wire.RoomState
	if !decode(data, &ev) {
		return
	}
	a.mu.Lock()
	if a.state != Joined || ev.RoomCode != a.code {
		a.mu.Unlock()
		return
	}
	snap := ev.RoomSnapshot
	a.room = &snap
	a.authTime = snap.CurrentTime
	out := copySnapshot(a.room)
	a.mu.Unlock()

	a.reconcile(out.CurrentTime, &out.IsPlaying)
	a.emitRoom(out)
}

func (a *Agent) onPlayback(typ string, data []byte) {
	var ev wire.Playback
	if !decode(data, &ev) {
		return
	}
	a.mu.Lock()
	if a.state != Joined || a.room == nil || ev.RoomCode != a.code {
		a.mu.Unlock()
		return
	}
	switch typ {
	case wire.TypeVideoPlayed:
		a.room.IsPlaying = true
	case wire.TypeVideoPaused:
		a.room.IsPlaying = false
	}
	a.room.CurrentTime = ev.CurrentTime
	a.authTime = ev.CurrentTime
	out := copySnapshot(a.room)
	a.mu.Unlock()

	var playing *bool
	if typ != wire.TypeVideoSeeked {
		playing = &out.IsPlaying
	}
	a.reconcile(ev.CurrentTime, playing)
	a.emitRoom(out)
}

// reconcile moves the player only when it has drifted past SnapTolerance.
func (a *Agent) reconcile(t float64, playing *bool) {
	p := a.opts.Player
	if p == nil {
		return
	}
	if math.Abs(p.CurrentTime()-t) > a.opts.SnapTolerance {
		p.Seek(t)
	}
	if playing == nil {
		return
	}
	if *playing {
		p.Play()
	} else {
		p.Pause()
	}
}

func (a *Agent) onParticipant(typ string, data []byte) {
	var ev wire.Participant
	if !decode(data, &ev) {
		return
	}
	a.mu.Lock()
	if a.room == nil || ev.RoomCode != a.code {
		a.mu.Unlock()
		return
	}
	parts := a.room.Participants
	idx := -1
	for i, p := range parts {
		if p.UserID == ev.UserID {
			idx = i
			break
		}
	}
	switch {
	case typ == wire.TypeParticipantJoined && idx < 0:
		a.room.Participants = append(parts, domain.Participant{UserID: ev.UserID, Username: ev.Username})
	case typ == wire.TypeParticipantLeft && idx >= 0:
		a.room.Participants = append(parts[:idx], parts[idx+1:]...)
	default:
		a.mu.Unlock()
		return
	}
	out := copySnapshot(a.room)
	a.mu.Unlock()
	a.emitRoom(out)
}

func (a *Agent) onChat(data []byte) {
	var ev wire.ChatMessage
	if !decode(data, &ev) {
		return
	}
	a.mu.Lock()
	if a.room != nil && ev.RoomCode == a.code {
		a.room.Messages = append(a.room.Messages, ev.Message)
	}
	a.mu.Unlock()
	if a.cb.OnChat != nil {
		a.cb.OnChat(ev.Message)
	}
}

func (a *Agent) onCreated(data []byte) {
	var ev wire.RoomCreated
	if !decode(data, &ev) {
		return
	}
	a.mu.Lock()
	w := a.takeLocked(ev.Ref)
	a.mu.Unlock()
	if w != nil {
		w <- reply{code: ev.RoomCode}
	}
}

func (a *Agent) onLeft(data []byte) {
	var ev wire.RoomEvent
	if !decode(data, &ev) {
		return
	}
	a.mu.Lock()
	w := a.takeLocked(ev.Ref)
	if a.state == Leaving {
		a.room = nil
		a.code = ""
		_ = a.setStateLocked(Authenticated)
	}
	a.unlockAndNotify()
	if w != nil {
		w <- reply{code: ev.RoomCode}
	}
}

func (a *Agent) onClosed(data []byte) {
	var ev wire.RoomEvent
	if !decode(data, &ev) {
		return
	}
	a.mu.Lock()
	if ev.RoomCode != a.code {
		a.mu.Unlock()
		return
	}
	a.room = nil
	a.code = ""
	if a.state == Joined || a.state == Joining || a.state == Leaving {
		_ = a.setStateLocked(Authenticated)
	}
	a.unlockAndNotify()
	log.Info().Str("module", "agent").Str("room", string(ev.RoomCode)).Msg("room closed")
	if a.cb.OnRoomClosed != nil {
		a.cb.OnRoomClosed(ev.RoomCode)
	}
}

// onError resolves the request it answers, or reports it as unsolicited.
func (a *Agent) onError(data []byte) {
	var ev wire.Error
	if !decode(data, &ev) {
		return
	}
	err := fmt.Errorf("%w: %s", domain.FromCode(ev.Code), ev.Message)

	var w chan reply
	if ev.Ref != 0 {
		a.mu.Lock()
		w = a.takeLocked(ev.Ref)
		switch {
		case ev.Ref == a.gen && a.state == Joining:
			a.room = nil
			a.code = ""
			_ = a.setStateLocked(Authenticated)
		case ev.Ref == a.leaveRef && a.state == Leaving:
			a.room = nil
			a.code = ""
			_ = a.setStateLocked(Authenticated)
		}
		a.unlockAndNotify()
	}
	if w != nil {
		w <- reply{err: err}
		return
	}
	if a.cb.OnServerError != nil {
		a.cb.OnServerError(err)
	}
}

func (a *Agent) emitRoom(s domain.RoomSnapshot) {
	if a.cb.OnRoom != nil {
		a.cb.OnRoom(s)
	}
}
