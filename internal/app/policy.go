package app

import "github.com/dkeye/WatchParty/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(group core.RoomGroup, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks slow members; they resync from the snapshot on rejoin.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.RoomGroup, core.MemberSession) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops the frame and keeps the member attached.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(core.RoomGroup, core.MemberSession) BackpressureAction {
	return DropFrame
}
