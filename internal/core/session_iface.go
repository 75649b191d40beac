package core

import "github.com/dkeye/WatchParty/internal/domain"

// SessionID identifies one logical connection, not a user.
type SessionID string

// MemberSession binds the authenticated identity and its transport endpoint.
// This is what a room group stores and fans out to.
type MemberSession interface {
	Meta() *domain.Identity
	Signal() SignalConnection
}
