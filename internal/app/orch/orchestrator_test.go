package orch_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/app/orch"
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/store"
	"github.com/dkeye/WatchParty/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (r *recorder) TrySend(f core.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return errors.New("backpressure")
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) Close() {}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		typ, _ := wire.TypeOf(f)
		out = append(out, typ)
	}
	return out
}

// last decodes the newest frame of the given type into v.
func (r *recorder) last(t *testing.T, typ string, v any) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		if got, _ := wire.TypeOf(r.frames[i]); got == typ {
			require.NoError(t, json.Unmarshal(r.frames[i], v))
			return
		}
	}
	t.Fatalf("no %s frame received", typ)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

type fixture struct {
	o     *orch.Orchestrator
	now   time.Time
	chat  *store.MemoryChatStore
	sigs  map[core.SessionID]*recorder
	kills map[core.SessionID]bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:   time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC),
		chat:  store.NewMemoryChatStore(50),
		sigs:  make(map[core.SessionID]*recorder),
		kills: make(map[core.SessionID]bool),
	}
	clock := func() time.Time { return f.now }
	rooms := app.NewRooms(store.NewMemoryRoomStore(), 10)
	rooms.Clock = clock
	f.o = &orch.Orchestrator{
		Registry:    app.NewRegistry(),
		Groups:      app.NewRoomManager(),
		Rooms:       rooms,
		Chat:        f.chat,
		Policy:      app.SimplePolicy{},
		AwayGrace:   time.Minute,
		IdleTTL:     24 * time.Hour,
		HistorySize: 50,
		Clock:       clock,
	}
	return f
}

func (f *fixture) connect(sid core.SessionID, uid domain.UserID) *recorder {
	rec := &recorder{}
	f.sigs[sid] = rec
	sess := core.NewMemberSession(&domain.Identity{UserID: uid, Username: string(uid)}, rec)
	f.o.Registry.BindSignal(sid, sess, func() { f.kills[sid] = true })
	return rec
}

func (f *fixture) identity(uid domain.UserID) *domain.Identity {
	return &domain.Identity{UserID: uid, Username: string(uid)}
}

func (f *fixture) room(t *testing.T, host domain.UserID, m *domain.Movie) domain.RoomCode {
	t.Helper()
	r, err := f.o.CreateRoom(context.Background(), f.identity(host), m, false, false)
	require.NoError(t, err)
	return r.Code
}

func (f *fixture) get(t *testing.T, code domain.RoomCode) *domain.Room {
	t.Helper()
	r, err := f.o.Rooms.GetRoom(context.Background(), code)
	require.NoError(t, err)
	return r
}

func film() *domain.Movie {
	return &domain.Movie{ID: "m1", Title: "Tears of Steel", Source: "https://cdn.example.com/tos.mp4", Duration: 734}
}

func TestJoin_ReturnsSnapshotAndAnnounces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	hostSig := f.connect("h1", "host")
	f.connect("g1", "guest")

	snap, err := f.o.Join(ctx, "h1", code)
	require.NoError(t, err)
	assert.True(t, snap.IsHost)
	assert.Equal(t, code, snap.RoomCode)
	require.Len(t, snap.Participants, 1)

	hostSig.reset()
	snap, err = f.o.Join(ctx, "g1", code)
	require.NoError(t, err)
	assert.False(t, snap.IsHost)
	assert.Len(t, snap.Participants, 2)
	assert.Equal(t, "https://cdn.example.com/tos.mp4", snap.Movie.Source)

	var ev wire.Participant
	hostSig.last(t, wire.TypeParticipantJoined, &ev)
	assert.Equal(t, domain.UserID("guest"), ev.UserID)
	assert.NotContains(t, f.sigs["g1"].types(), wire.TypeParticipantJoined, "joiner is not told about itself")
}

func TestJoin_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	hostSig := f.connect("h1", "host")
	f.connect("g1", "guest")
	_, err := f.o.Join(ctx, "h1", code)
	require.NoError(t, err)
	_, err = f.o.Join(ctx, "g1", code)
	require.NoError(t, err)
	before := f.get(t, code).LastActivity

	hostSig.reset()
	f.now = f.now.Add(time.Minute)
	snap, err := f.o.Join(ctx, "g1", code)
	require.NoError(t, err)

	assert.Len(t, snap.Participants, 2)
	assert.Empty(t, hostSig.types(), "repeat join must not broadcast")
	assert.Equal(t, before, f.get(t, code).LastActivity, "repeat join must not write")
}

func TestJoin_UnknownRoom(t *testing.T) {
	f := newFixture(t)
	f.connect("g1", "guest")
	_, err := f.o.Join(context.Background(), "g1", "NOPE00")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, _, ok := f.o.Registry.RoomOf("g1")
	assert.False(t, ok)
}

func TestJoin_SwitchingRoomsLeavesThePreviousOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.room(t, "host", nil)
	b := f.room(t, "host", nil)
	f.connect("g1", "guest")

	_, err := f.o.Join(ctx, "g1", a)
	require.NoError(t, err)
	_, err = f.o.Join(ctx, "g1", b)
	require.NoError(t, err)

	assert.False(t, f.get(t, a).HasParticipant("guest"))
	assert.True(t, f.get(t, b).HasParticipant("guest"))
}

func TestPlayback_NonHostIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	hostSig := f.connect("h1", "host")
	f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "h1", code)
	_, _ = f.o.Join(ctx, "g1", code)
	hostSig.reset()

	for _, op := range []func(context.Context, core.SessionID, domain.RoomCode, float64) error{f.o.Play, f.o.Pause, f.o.Seek} {
		err := op(ctx, "g1", code, 99)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	}

	r := f.get(t, code)
	assert.False(t, r.IsPlaying)
	assert.Zero(t, r.CurrentTime)
	assert.Empty(t, hostSig.types())
}

func TestPlayback_HostControlsAreRelayed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	hostSig := f.connect("h1", "host")
	guestSig := f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "h1", code)
	_, _ = f.o.Join(ctx, "g1", code)
	hostSig.reset()
	guestSig.reset()

	require.NoError(t, f.o.Play(ctx, "h1", code, 10))
	r := f.get(t, code)
	assert.True(t, r.IsPlaying)
	assert.Equal(t, 10.0, r.CurrentTime)

	var ev wire.Playback
	guestSig.last(t, wire.TypeVideoPlayed, &ev)
	assert.Equal(t, 10.0, ev.CurrentTime)
	assert.Equal(t, domain.UserID("host"), ev.ActorID)
	assert.Empty(t, hostSig.types(), "originator is excluded")

	require.NoError(t, f.o.Seek(ctx, "h1", code, -4))
	guestSig.last(t, wire.TypeVideoSeeked, &ev)
	assert.Zero(t, ev.CurrentTime, "negative time clamps to zero")
	assert.True(t, f.get(t, code).IsPlaying, "seek keeps the play state")

	require.NoError(t, f.o.Pause(ctx, "h1", code, 42))
	guestSig.last(t, wire.TypeVideoPaused, &ev)
	assert.Equal(t, 42.0, ev.CurrentTime)
	assert.False(t, f.get(t, code).IsPlaying)
}

func TestPlayback_WithoutMovieTimeStaysZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", nil)
	f.connect("h1", "host")
	_, _ = f.o.Join(ctx, "h1", code)

	require.NoError(t, f.o.Play(ctx, "h1", code, 50))
	r := f.get(t, code)
	assert.Zero(t, r.CurrentTime)
	assert.False(t, r.IsPlaying)
}

func TestPlayback_RequiresJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	f.connect("h1", "host")

	assert.ErrorIs(t, f.o.Play(ctx, "h1", code, 1), domain.ErrNotJoined)
	assert.ErrorIs(t, f.o.ReportTime(ctx, "h1", code, 1), domain.ErrNotJoined)
	_, err := f.o.SendMessage(ctx, "h1", code, "hi")
	assert.ErrorIs(t, err, domain.ErrNotJoined)
}

func TestSelectVideo_AnyParticipantResetsAndEveryoneHearsIt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	hostSig := f.connect("h1", "host")
	guestSig := f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "h1", code)
	_, _ = f.o.Join(ctx, "g1", code)
	require.NoError(t, f.o.Play(ctx, "h1", code, 300))

	next := &domain.Movie{ID: "m2", Title: "Cosmos Laundromat", Source: "https://cdn.example.com/cl.mp4"}
	require.NoError(t, f.o.SelectVideo(ctx, "g1", code, next))

	r := f.get(t, code)
	assert.Equal(t, "m2", r.Movie.ID)
	assert.Zero(t, r.CurrentTime)
	assert.False(t, r.IsPlaying)

	var hostView, guestView wire.RoomState
	hostSig.last(t, wire.TypeRoomStateUpdate, &hostView)
	guestSig.last(t, wire.TypeRoomStateUpdate, &guestView)
	assert.True(t, hostView.IsHost)
	assert.False(t, guestView.IsHost)
	assert.Equal(t, "m2", guestView.Movie.ID)
	assert.Zero(t, guestView.CurrentTime)
}

func TestSelectVideo_RejectsMovieWithoutSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	f.connect("h1", "host")
	_, _ = f.o.Join(ctx, "h1", code)

	err := f.o.SelectVideo(ctx, "h1", code, &domain.Movie{Title: "nothing"})
	assert.ErrorIs(t, err, domain.ErrInvalidMovie)
	assert.Equal(t, "m1", f.get(t, code).Movie.ID)
}

func TestToggleSubtitles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	f.connect("h1", "host")
	guestSig := f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "h1", code)
	_, _ = f.o.Join(ctx, "g1", code)

	require.NoError(t, f.o.ToggleSubtitles(ctx, "g1", code, true))
	assert.True(t, f.get(t, code).SubtitlesEnabled)
	var st wire.RoomState
	guestSig.last(t, wire.TypeRoomStateUpdate, &st)
	assert.True(t, st.SubtitlesEnabled)
}

func TestReportTime_IsASilentHint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	hostSig := f.connect("h1", "host")
	f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "h1", code)
	_, _ = f.o.Join(ctx, "g1", code)
	require.NoError(t, f.o.Play(ctx, "h1", code, 5))
	hostSig.reset()

	require.NoError(t, f.o.ReportTime(ctx, "g1", code, 104))
	r := f.get(t, code)
	assert.Equal(t, 104.0, r.CurrentTime)
	assert.True(t, r.IsPlaying)
	assert.Empty(t, hostSig.types())
}

func TestReportTime_IgnoredWithoutMovie(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", nil)
	f.connect("h1", "host")
	_, _ = f.o.Join(ctx, "h1", code)

	require.NoError(t, f.o.ReportTime(ctx, "h1", code, 50))
	assert.Zero(t, f.get(t, code).CurrentTime)
}

func TestLeave_RemovesFromRoster(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	hostSig := f.connect("h1", "host")
	f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "h1", code)
	_, _ = f.o.Join(ctx, "g1", code)
	hostSig.reset()

	require.NoError(t, f.o.Leave(ctx, "g1", code))
	assert.False(t, f.get(t, code).HasParticipant("guest"))
	var ev wire.Participant
	hostSig.last(t, wire.TypeParticipantLeft, &ev)
	assert.Equal(t, domain.UserID("guest"), ev.UserID)

	hostSig.reset()
	require.NoError(t, f.o.Leave(ctx, "g1", code), "leaving twice is a no-op")
	assert.Empty(t, hostSig.types())
}

func TestLeave_OtherTabKeepsUserOnRoster(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	f.connect("g1", "guest")
	f.connect("g2", "guest")
	_, _ = f.o.Join(ctx, "g1", code)
	_, _ = f.o.Join(ctx, "g2", code)

	require.NoError(t, f.o.Leave(ctx, "g1", code))
	assert.True(t, f.get(t, code).HasParticipant("guest"))
}

func TestDisconnect_KeepsRosterUntilGraceExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	hostSig := f.connect("h1", "host")
	f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "h1", code)
	_, _ = f.o.Join(ctx, "g1", code)
	hostSig.reset()

	f.o.OnDisconnect("g1")
	assert.True(t, f.get(t, code).HasParticipant("guest"), "temporarily away")
	assert.Empty(t, hostSig.types())

	f.now = f.now.Add(30 * time.Second)
	f.o.SweepInactive(ctx)
	assert.True(t, f.get(t, code).HasParticipant("guest"))

	f.now = f.now.Add(31 * time.Second)
	f.o.SweepInactive(ctx)
	assert.False(t, f.get(t, code).HasParticipant("guest"))
	var ev wire.Participant
	hostSig.last(t, wire.TypeParticipantLeft, &ev)
	assert.Equal(t, domain.UserID("guest"), ev.UserID)
}

func TestDisconnect_ReconnectWithinGraceKeepsSeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "g1", code)
	f.o.OnDisconnect("g1")

	f.now = f.now.Add(10 * time.Second)
	f.connect("g2", "guest")
	snap, err := f.o.Join(ctx, "g2", code)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 1)

	f.now = f.now.Add(time.Hour)
	f.o.SweepInactive(ctx)
	assert.True(t, f.get(t, code).HasParticipant("guest"))
}

func TestSweep_ExpiresIdleRoomsWithoutConnections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	idle := f.room(t, "host", nil)
	busy := f.room(t, "host", nil)
	f.connect("h1", "host")
	_, _ = f.o.Join(ctx, "h1", busy)

	f.now = f.now.Add(25 * time.Hour)
	f.o.SweepInactive(ctx)

	_, err := f.o.Rooms.GetRoom(ctx, idle)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = f.o.Rooms.GetRoom(ctx, busy)
	assert.NoError(t, err)
}

func TestChat_DeliveredToEveryoneAndKeptInHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	hostSig := f.connect("h1", "host")
	guestSig := f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "h1", code)
	_, _ = f.o.Join(ctx, "g1", code)

	msg, err := f.o.SendMessage(ctx, "g1", code, "  popcorn ready  ")
	require.NoError(t, err)
	assert.Equal(t, "popcorn ready", msg.Content)

	var got wire.ChatMessage
	guestSig.last(t, wire.TypeChatMessage, &got)
	assert.Equal(t, "popcorn ready", got.Content)
	hostSig.last(t, wire.TypeChatMessage, &got)
	assert.Equal(t, "guest", got.Sender)

	f.connect("g2", "late")
	snap, err := f.o.Join(ctx, "g2", code)
	require.NoError(t, err)
	var contents []string
	for _, m := range snap.Messages {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "popcorn ready")
	assert.Contains(t, contents, "guest joined the room")
}

func TestChat_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "g1", code)

	_, err := f.o.SendMessage(ctx, "g1", code, "   ")
	assert.ErrorIs(t, err, domain.ErrMessageEmpty)

	long := make([]byte, domain.MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.o.SendMessage(ctx, "g1", code, string(long))
	assert.ErrorIs(t, err, domain.ErrMessageTooLong)
}

type denyAfter struct{ n int }

func (d *denyAfter) Allow(domain.UserID) bool {
	d.n--
	return d.n >= 0
}

func TestChat_RateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.o.ChatLimit = &denyAfter{n: 1}
	code := f.room(t, "host", film())
	f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "g1", code)

	_, err := f.o.SendMessage(ctx, "g1", code, "one")
	require.NoError(t, err)
	_, err = f.o.SendMessage(ctx, "g1", code, "two")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestDeleteRoom_HostOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	f.connect("h1", "host")
	guestSig := f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "h1", code)
	_, _ = f.o.Join(ctx, "g1", code)

	err := f.o.DeleteRoom(ctx, f.identity("guest"), code)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	require.NoError(t, f.o.DeleteRoom(ctx, f.identity("host"), code))
	assert.Contains(t, guestSig.types(), wire.TypeRoomClosed)
	_, _, ok := f.o.Registry.RoomOf("g1")
	assert.False(t, ok)
	_, err = f.o.Rooms.GetRoom(ctx, code)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestBackpressure_KicksSlowMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	f.connect("h1", "host")
	slow := f.connect("g1", "guest")
	_, _ = f.o.Join(ctx, "h1", code)
	_, _ = f.o.Join(ctx, "g1", code)
	slow.full = true

	require.NoError(t, f.o.Play(ctx, "h1", code, 1))

	assert.True(t, f.kills["g1"])
	_, _, ok := f.o.Registry.RoomOf("g1")
	assert.False(t, ok)
	assert.True(t, f.get(t, code).HasParticipant("guest"), "kicked member keeps the seat")
}

// slowGroups runs before once, when a group is first looked up for a join.
type slowGroups struct {
	core.RoomManager
	once   sync.Once
	before func()
}

func (g *slowGroups) GetOrCreate(code domain.RoomCode) core.RoomGroup {
	g.once.Do(g.before)
	return g.RoomManager.GetOrCreate(code)
}

func TestJoinAndReply_ControlDuringJoinReachesJoiner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	f.connect("h1", "host")
	guest := f.connect("g1", "guest")
	_, err := f.o.Join(ctx, "h1", code)
	require.NoError(t, err)
	require.NoError(t, f.o.Play(ctx, "h1", code, 10))

	paused := make(chan error, 1)
	f.o.Groups = &slowGroups{RoomManager: f.o.Groups, before: func() {
		go func() { paused <- f.o.Pause(ctx, "h1", code, 42) }()
		time.Sleep(20 * time.Millisecond)
	}}

	snap, err := f.o.JoinAndReply(ctx, "g1", code, 7)
	require.NoError(t, err)
	require.NoError(t, <-paused)

	// The pause commits after the join, so the snapshot predates it and the
	// joiner learns of it from the event that follows room-joined.
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, 10.0, snap.CurrentTime)

	stored := f.get(t, code)
	assert.False(t, stored.IsPlaying)
	assert.Equal(t, 42.0, stored.CurrentTime)

	types := guest.types()
	require.NotEmpty(t, types)
	assert.Equal(t, wire.TypeRoomJoined, types[0])
	var joined wire.RoomState
	guest.last(t, wire.TypeRoomJoined, &joined)
	assert.Equal(t, int64(7), joined.Ref)

	var ev wire.Playback
	guest.last(t, wire.TypeVideoPaused, &ev)
	assert.Equal(t, 42.0, ev.CurrentTime)
}

func TestJoinAndReply_RepeatJoinRepliesWithoutBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.room(t, "host", film())
	hostSig := f.connect("h1", "host")
	guest := f.connect("g1", "guest")
	_, err := f.o.Join(ctx, "h1", code)
	require.NoError(t, err)
	_, err = f.o.Join(ctx, "g1", code)
	require.NoError(t, err)

	hostSig.reset()
	guest.reset()
	_, err = f.o.JoinAndReply(ctx, "g1", code, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{wire.TypeRoomJoined}, guest.types())
	assert.Empty(t, hostSig.types())
}
