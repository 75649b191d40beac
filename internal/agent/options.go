package agent

import (
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	DefaultConnectTimeout       = 15 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultReportThreshold      = 2.0
	DefaultSnapTolerance        = 0.5
	DefaultMaxReconnectAttempts = 5
	DefaultInitialBackoff       = 500 * time.Millisecond
	DefaultMaxBackoff           = 10 * time.Second
)

// Player is the local media element the agent keeps in step.
type Player interface {
	CurrentTime() float64
	Seek(t float64)
	Play()
	Pause()
}

type Options struct {
	// URL of the socket endpoint, e.g. ws://host/api/ws.
	URL   string
	Token string

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// ReportThreshold is the drift in seconds above which a local time is
	// reported to the server.
	ReportThreshold float64
	// SnapTolerance is the drift in seconds above which the player is
	// moved to an authoritative time.
	SnapTolerance float64

	MaxReconnectAttempts int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration

	Player Player
	Dialer *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.ReportThreshold <= 0 {
		o.ReportThreshold = DefaultReportThreshold
	}
	if o.SnapTolerance <= 0 {
		o.SnapTolerance = DefaultSnapTolerance
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = o.ConnectTimeout
		o.Dialer = &d
	}
	return o
}

// Callbacks are invoked from the agent's goroutines, never under its lock.
// Any of them may be nil.
type Callbacks struct {
	OnStateChange func(from, to State)
	// OnRoom receives the local room view after every change.
	OnRoom       func(domain.RoomSnapshot)
	OnChat       func(domain.Message)
	OnRoomClosed func(domain.RoomCode)
	// OnServerError receives error events not tied to a pending request,
	// such as NOT_AUTHORIZED for a rejected control.
	OnServerError func(error)
	// OnAuthError fires when the server refuses the credential. The agent
	// does not retry; call SetToken and Connect again.
	OnAuthError func(error)
	// OnUnreachable fires when reconnection gives up.
	OnUnreachable func(error)
}
