package core

import "github.com/dkeye/WatchParty/internal/domain"

// memberSession implements MemberSession by pairing identity + transport.
type memberSession struct {
	meta   *domain.Identity
	signal SignalConnection
}

func NewMemberSession(meta *domain.Identity, signal SignalConnection) MemberSession {
	return &memberSession{meta: meta, signal: signal}
}

func (m *memberSession) Meta() *domain.Identity   { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.signal }
