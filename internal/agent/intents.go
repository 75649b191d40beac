package agent

import (
	"context"
	"fmt"
	"math"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/wire"
)

var errNotConnected = fmt.Errorf("%w: not connected", domain.ErrConnection)

// Join enters a room and waits for its snapshot. Joining the room the agent
// is already in returns the local view without a round trip. A newer Join
// supersedes this one; its reply is then discarded.
func (a *Agent) Join(ctx context.Context, code domain.RoomCode) (domain.RoomSnapshot, error) {
	code, ok := domain.ParseRoomCode(string(code))
	if !ok {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}

	a.mu.Lock()
	if a.state == Joined && a.code == code && a.room != nil {
		snap := copySnapshot(a.room)
		a.mu.Unlock()
		return snap, nil
	}
	switch a.state {
	case Authenticated, Joining, Joined:
	case Leaving:
		a.mu.Unlock()
		return domain.RoomSnapshot{}, fmt.Errorf("%w: leave in progress", ErrIllegalTransition)
	default:
		a.mu.Unlock()
		return domain.RoomSnapshot{}, errNotConnected
	}
	if err := a.setStateLocked(Joining); err != nil {
		a.unlockAndNotify()
		return domain.RoomSnapshot{}, err
	}
	ref := a.nextRefLocked()
	a.gen = ref
	a.code = code
	w := a.waitLocked(ref)
	a.unlockAndNotify()

	if err := a.send(wire.RoomRequest{Type: wire.TypeJoinRoom, RoomCode: string(code), Ref: ref}); err != nil {
		a.mu.Lock()
		delete(a.pending, ref)
		a.mu.Unlock()
		return domain.RoomSnapshot{}, err
	}
	r, err := a.await(ctx, ref, w)
	return r.snap, err
}

// Leave exits the current room and keeps the connection open.
func (a *Agent) Leave(ctx context.Context) error {
	a.mu.Lock()
	if a.state != Joined {
		a.mu.Unlock()
		return nil
	}
	code := a.code
	if err := a.setStateLocked(Leaving); err != nil {
		a.unlockAndNotify()
		return err
	}
	ref := a.nextRefLocked()
	a.leaveRef = ref
	w := a.waitLocked(ref)
	a.unlockAndNotify()

	if err := a.send(wire.RoomRequest{Type: wire.TypeLeaveRoom, RoomCode: string(code), Ref: ref}); err != nil {
		return err
	}
	_, err := a.await(ctx, ref, w)
	return err
}

// CreateRoom asks the server for a new room hosted by this identity. The
// agent does not join it.
func (a *Agent) CreateRoom(ctx context.Context, movie *domain.Movie, isPrivate, subtitles bool) (domain.RoomCode, error) {
	a.mu.Lock()
	if a.state < Authenticated {
		a.mu.Unlock()
		return "", errNotConnected
	}
	ref := a.nextRefLocked()
	w := a.waitLocked(ref)
	a.mu.Unlock()

	err := a.send(wire.CreateRoom{
		Type:             wire.TypeCreateRoom,
		Ref:              ref,
		Movie:            movie,
		IsPrivate:        isPrivate,
		SubtitlesEnabled: subtitles,
	})
	if err != nil {
		return "", err
	}
	r, err := a.await(ctx, ref, w)
	return r.code, err
}

func (a *Agent) Play(t float64) error {
	playing := true
	return a.control(wire.TypePlay, t, &playing)
}

func (a *Agent) Pause(t float64) error {
	playing := false
	return a.control(wire.TypePause, t, &playing)
}

func (a *Agent) Seek(t float64) error { return a.control(wire.TypeSeek, t, nil) }

// control sends a host transport command. Non-hosts are refused locally;
// the server enforces the same rule regardless.
func (a *Agent) control(typ string, t float64, playing *bool) error {
	a.mu.Lock()
	if a.state != Joined || a.room == nil {
		a.mu.Unlock()
		return domain.ErrNotJoined
	}
	if !a.room.IsHost {
		a.mu.Unlock()
		return domain.ErrNotAuthorized
	}
	if t < 0 || a.room.Movie == nil {
		t = 0
	}
	a.room.CurrentTime = t
	if playing != nil {
		a.room.IsPlaying = *playing
	}
	a.authTime = t
	code := a.code
	a.mu.Unlock()

	return a.send(wire.Playback{Type: typ, RoomCode: code, CurrentTime: t})
}

// SelectVideo shows the new movie locally at once; the room-state-update
// that follows overwrites the local view.
func (a *Agent) SelectVideo(movie *domain.Movie) error {
	if err := movie.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	if a.state != Joined || a.room == nil {
		a.mu.Unlock()
		return domain.ErrNotJoined
	}
	a.room.Movie = movie.Clone()
	a.room.CurrentTime = 0
	a.room.IsPlaying = false
	a.authTime = 0
	code := a.code
	snap := copySnapshot(a.room)
	a.mu.Unlock()

	a.emitRoom(snap)
	return a.send(wire.SelectVideo{Type: wire.TypeSelectVideo, RoomCode: code, Movie: movie})
}

func (a *Agent) ToggleSubtitles(enabled bool) error {
	code, err := a.joinedCode()
	if err != nil {
		return err
	}
	return a.send(wire.ToggleSubtitles{Type: wire.TypeToggleSubtitles, RoomCode: code, Enabled: enabled})
}

func (a *Agent) SendMessage(content string) error {
	code, err := a.joinedCode()
	if err != nil {
		return err
	}
	return a.send(wire.SendChat{Type: wire.TypeChatMessage, RoomCode: code, Content: content})
}

// ReportLocalTime forwards the local playhead only when it is more than
// ReportThreshold away from the last authoritative time, which it then
// becomes. It reports whether a time-report was sent.
func (a *Agent) ReportLocalTime(t float64) (bool, error) {
	a.mu.Lock()
	if a.state != Joined {
		a.mu.Unlock()
		return false, domain.ErrNotJoined
	}
	if math.Abs(t-a.authTime) <= a.opts.ReportThreshold {
		a.mu.Unlock()
		return false, nil
	}
	a.authTime = t
	code := a.code
	a.mu.Unlock()

	if err := a.send(wire.Playback{Type: wire.TypeTimeReport, RoomCode: code, CurrentTime: t}); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Agent) joinedCode() (domain.RoomCode, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Joined {
		return "", domain.ErrNotJoined
	}
	return a.code, nil
}
