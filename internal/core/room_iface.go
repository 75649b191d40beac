package core

import (
	"github.com/dkeye/WatchParty/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomGroup is the transport-level topic group of a room: the set of
// connections currently attached to it. It never touches the room document
// and never closes adapter-owned resources.
type RoomGroup interface {
	Code() domain.RoomCode
	MemberCount() int
	HasUser(uid domain.UserID) bool

	// AddMember reports false when sid was already attached.
	AddMember(sid SessionID, ms MemberSession) bool
	RemoveMember(sid SessionID) bool
	// Broadcast fans data out to every member except from; an empty from
	// includes everyone.
	Broadcast(from SessionID, data Frame) PublishResult
	// SendEach renders a frame per member, for per-viewer payloads.
	// A nil frame skips that member.
	SendEach(from SessionID, render func(MemberSession) Frame) PublishResult
}

type RoomInfo struct {
	Code        domain.RoomCode `json:"roomCode"`
	MemberCount int             `json:"connections"`
}

type RoomManager interface {
	GetOrCreate(code domain.RoomCode) RoomGroup
	Get(code domain.RoomCode) (RoomGroup, bool)
	List() []RoomInfo
	StopRoom(code domain.RoomCode)
}
