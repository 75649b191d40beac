package core_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("full")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

func (f *fakeSignal) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func member(uid domain.UserID, sig *fakeSignal) core.MemberSession {
	return core.NewMemberSession(&domain.Identity{UserID: uid, Username: string(uid)}, sig)
}

func TestRoomGroup_Membership(t *testing.T) {
	g := core.NewRoomGroup("ROOM01")
	a := &fakeSignal{}

	assert.True(t, g.AddMember("s1", member("alice", a)))
	assert.False(t, g.AddMember("s1", member("alice", a)), "same connection twice")
	assert.True(t, g.AddMember("s2", member("alice", &fakeSignal{})), "second tab of the same user")
	assert.Equal(t, 2, g.MemberCount())
	assert.True(t, g.HasUser("alice"))

	assert.True(t, g.RemoveMember("s1"))
	assert.True(t, g.HasUser("alice"), "alice still has a tab open")
	assert.True(t, g.RemoveMember("s2"))
	assert.False(t, g.HasUser("alice"))
	assert.False(t, g.RemoveMember("s2"))
	assert.Zero(t, g.MemberCount())
}

func TestRoomGroup_BroadcastExcludesSender(t *testing.T) {
	g := core.NewRoomGroup("ROOM01")
	a, b, c := &fakeSignal{}, &fakeSignal{}, &fakeSignal{}
	g.AddMember("a", member("alice", a))
	g.AddMember("b", member("bob", b))
	g.AddMember("c", member("carol", c))

	res := g.Broadcast("a", core.Frame(`{"type":"video-played"}`))
	assert.Equal(t, 2, res.SendTo)
	assert.Empty(t, res.Dropped)
	assert.Zero(t, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 1, c.count())

	res = g.Broadcast("", core.Frame(`{"type":"room-state-update"}`))
	assert.Equal(t, 3, res.SendTo)
	assert.Equal(t, 1, a.count())
}

func TestRoomGroup_BroadcastReportsDropped(t *testing.T) {
	g := core.NewRoomGroup("ROOM01")
	slow := &fakeSignal{full: true}
	ok := &fakeSignal{}
	slowMember := member("slow", slow)
	g.AddMember("s", slowMember)
	g.AddMember("o", member("ok", ok))

	res := g.Broadcast("", core.Frame(`{}`))
	assert.Equal(t, 1, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Same(t, slowMember, res.Dropped[0])
}

func TestRoomGroup_SendEachRendersPerViewer(t *testing.T) {
	g := core.NewRoomGroup("ROOM01")
	a, b := &fakeSignal{}, &fakeSignal{}
	g.AddMember("a", member("alice", a))
	g.AddMember("b", member("bob", b))

	res := g.SendEach("", func(m core.MemberSession) core.Frame {
		return core.Frame("hello " + string(m.Meta().UserID))
	})
	assert.Equal(t, 2, res.SendTo)
	require.Equal(t, 1, a.count())
	assert.Equal(t, core.Frame("hello alice"), a.frames[0])
	assert.Equal(t, core.Frame("hello bob"), b.frames[0])
}
