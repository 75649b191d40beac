package app_test

import (
	"testing"

	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSignal struct{}

func (nopSignal) TrySend(core.Frame) error { return nil }
func (nopSignal) Close()                   {}

func TestRegistry_BindAndRoom(t *testing.T) {
	reg := app.NewRegistry()
	sess := core.NewMemberSession(&domain.Identity{UserID: "u1", Username: "alice"}, nopSignal{})
	canceled := false
	reg.BindSignal("s1", sess, func() { canceled = true })

	_, _, ok := reg.RoomOf("s1")
	assert.False(t, ok, "fresh connection is not in a room")

	require.True(t, reg.UpdateRoom("s1", "ROOM01"))
	code, got, ok := reg.RoomOf("s1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomCode("ROOM01"), code)
	assert.Same(t, sess, got)
	assert.Len(t, reg.MembersOfRoom("ROOM01"), 1)

	sid, ok := reg.FindSID(sess)
	require.True(t, ok)
	assert.Equal(t, core.SessionID("s1"), sid)

	reg.RemoveRoom("s1")
	_, _, ok = reg.RoomOf("s1")
	assert.False(t, ok)

	assert.True(t, reg.Cancel("s1"))
	assert.True(t, canceled)

	reg.Unbind("s1")
	assert.Zero(t, reg.Count())
	assert.False(t, reg.UpdateRoom("s1", "ROOM01"))
	assert.False(t, reg.Cancel("s1"))
}

func TestGroupManager(t *testing.T) {
	m := app.NewRoomManager()
	g := m.GetOrCreate("ROOM01")
	assert.Same(t, g, m.GetOrCreate("ROOM01"))

	sess := core.NewMemberSession(&domain.Identity{UserID: "u1"}, nopSignal{})
	g.AddMember("s1", sess)
	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].MemberCount)

	m.StopRoom("ROOM01")
	_, ok := m.Get("ROOM01")
	assert.False(t, ok)
}
