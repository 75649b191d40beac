// Package agent is the client side of a room: one logical connection, a
// local view of the room, and the rules that keep a local player in step
// with the host.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	ErrClosed     = errors.New("agent closed")
	ErrSuperseded = errors.New("superseded by a newer request")
)

type reply struct {
	snap domain.RoomSnapshot
	code domain.RoomCode
	err  error
}

type Agent struct {
	opts Options
	cb   Callbacks
	sf   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu    sync.Mutex
	state State
	notes []stateChange
	conn  *websocket.Conn
	// epoch identifies the current transport; read loops of older ones
	// must not touch state.
	epoch        uint64
	closed       bool
	reconnecting bool
	token        string

	seq uint64
	// gen is the ref of the newest join; older replies are discarded.
	gen      int64
	leaveRef int64
	code     domain.RoomCode
	room     *domain.RoomSnapshot
	// authTime is the last authoritative playback time seen or sent.
	authTime float64
	pending  map[int64]chan reply
}

func New(opts Options, cb Callbacks) *Agent {
	ctx, cancel := context.WithCancel(context.Background())
	return &Agent{
		opts:    opts.withDefaults(),
		cb:      cb,
		ctx:     ctx,
		cancel:  cancel,
		token:   opts.Token,
		pending: make(map[int64]chan reply),
	}
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Room returns a copy of the local room view.
func (a *Agent) Room() (domain.RoomSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.room == nil {
		return domain.RoomSnapshot{}, false
	}
	return copySnapshot(a.room), true
}

// SetToken replaces the credential used by the next connection attempt.
func (a *Agent) SetToken(tok string) {
	a.mu.Lock()
	a.token = tok
	a.mu.Unlock()
}

// setStateLocked records a transition; unlockAndNotify delivers it.
func (a *Agent) setStateLocked(to State) error {
	from := a.state
	if !canTransition(from, to) {
		log.Warn().Str("module", "agent").Stringer("from", from).Stringer("to", to).Msg("illegal transition")
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	a.state = to
	a.notes = append(a.notes, stateChange{from, to})
	return nil
}

func (a *Agent) unlockAndNotify() {
	notes := a.notes
	a.notes = nil
	a.mu.Unlock()
	if a.cb.OnStateChange == nil {
		return
	}
	for _, n := range notes {
		a.cb.OnStateChange(n.from, n.to)
	}
}

// Connect opens the connection. Concurrent callers share one attempt.
// A refused credential yields domain.ErrAuth and is never retried.
func (a *Agent) Connect(ctx context.Context) error {
	a.mu.Lock()
	switch {
	case a.closed:
		a.mu.Unlock()
		return ErrClosed
	case a.state >= Authenticated:
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	ch := a.sf.DoChan("connect", func() (any, error) {
		return nil, a.connect()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (a *Agent) connect() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.state >= Authenticated {
		a.mu.Unlock()
		return nil
	}
	if err := a.setStateLocked(Connecting); err != nil {
		a.unlockAndNotify()
		return err
	}
	tok := a.token
	a.unlockAndNotify()

	dctx, cancel := context.WithTimeout(a.ctx, a.opts.ConnectTimeout)
	defer cancel()

	hdr := http.Header{}
	if tok != "" {
		hdr.Set("Authorization", "Bearer "+tok)
	}
	conn, resp, err := a.opts.Dialer.DialContext(dctx, a.opts.URL, hdr)
	if err != nil {
		err = dialError(dctx, resp, err)
		a.mu.Lock()
		_ = a.setStateLocked(Disconnected)
		a.unlockAndNotify()
		log.Warn().Err(err).Str("module", "agent").Msg("connect failed")
		if errors.Is(err, domain.ErrAuth) && a.cb.OnAuthError != nil {
			a.cb.OnAuthError(err)
		}
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	a.conn = conn
	a.epoch++
	epoch := a.epoch
	_ = a.setStateLocked(Authenticated)
	a.unlockAndNotify()

	log.Info().Str("module", "agent").Str("url", a.opts.URL).Msg("connected")
	go a.readLoop(conn, epoch)
	return nil
}

type handshakeBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// dialError classifies a failed dial. Only connection-class results are
// worth retrying.
func dialError(ctx context.Context, resp *http.Response, err error) error {
	if resp != nil {
		var body handshakeBody
		if resp.Body != nil {
			_ = json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: handshake rejected: %s", domain.ErrAuth, body.Message)
		case body.Code != "":
			return fmt.Errorf("%w: handshake status %d", domain.FromCode(body.Code), resp.StatusCode)
		default:
			return fmt.Errorf("%w: handshake status %d: %w", domain.ErrConnection, resp.StatusCode, err)
		}
	}
	var ne net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", domain.ErrConnectionTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrConnection, err)
}

func (a *Agent) readLoop(conn *websocket.Conn, epoch uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.onDrop(epoch, err)
			return
		}
		a.dispatch(data)
	}
}

// onDrop moves to Disconnected and starts reconnecting, unless the
// transport was already replaced or the agent closed. A drop during a leave
// forgets the room.
func (a *Agent) onDrop(epoch uint64, cause error) {
	a.mu.Lock()
	if epoch != a.epoch || a.closed {
		a.mu.Unlock()
		return
	}
	conn := a.conn
	a.conn = nil
	if a.state == Leaving {
		a.room = nil
		a.code = ""
	}
	_ = a.setStateLocked(Disconnected)
	pending := a.takeAllLocked()
	start := !a.reconnecting
	a.reconnecting = true
	a.unlockAndNotify()

	if conn != nil {
		conn.Close()
	}
	log.Warn().Err(cause).Str("module", "agent").Msg("connection dropped")
	for _, w := range pending {
		w <- reply{err: fmt.Errorf("%w: %w", domain.ErrConnection, cause)}
	}
	if start {
		go a.reconnect()
	}
}

func (a *Agent) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = a.opts.InitialBackoff
	eb.MaxInterval = a.opts.MaxBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithMaxRetries(eb, uint64(a.opts.MaxReconnectAttempts-1))
	return backoff.WithContext(b, a.ctx)
}

// reconnect retries connection-class failures with exponential backoff and
// replays the join of the remembered room.
func (a *Agent) reconnect() {
	op := func() error {
		err := a.Connect(a.ctx)
		if err != nil && !domain.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Info().Err(err).Str("module", "agent").Dur("next", next).Msg("reconnect attempt failed")
	}
	err := backoff.RetryNotify(op, a.newBackOff(), notify)

	a.mu.Lock()
	a.reconnecting = false
	code := a.code
	a.mu.Unlock()

	if err != nil {
		if a.ctx.Err() != nil || errors.Is(err, domain.ErrAuth) {
			return
		}
		log.Error().Err(err).Str("module", "agent").Msg("server unreachable")
		if a.cb.OnUnreachable != nil {
			a.cb.OnUnreachable(err)
		}
		return
	}
	if code == "" {
		return
	}
	ctx, cancel := context.WithTimeout(a.ctx, a.opts.ConnectTimeout)
	defer cancel()
	if _, err := a.Join(ctx, code); err != nil {
		log.Warn().Err(err).Str("module", "agent").Str("room", string(code)).Msg("rejoin failed")
		return
	}
	log.Info().Str("module", "agent").Str("room", string(code)).Msg("rejoined")
}

// Close ends the connection for good. Pending requests fail with ErrClosed.
func (a *Agent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	conn := a.conn
	a.conn = nil
	a.epoch++
	if a.state != Disconnected {
		_ = a.setStateLocked(Disconnected)
	}
	pending := a.takeAllLocked()
	a.unlockAndNotify()

	a.cancel()
	for _, w := range pending {
		w <- reply{err: ErrClosed}
	}
	if conn != nil {
		a.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		a.writeMu.Unlock()
		conn.Close()
	}
}

func (a *Agent) send(v any) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", domain.ErrConnection)
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	return nil
}

func (a *Agent) nextRefLocked() int64 {
	a.seq++
	return int64(a.seq)
}

func (a *Agent) waitLocked(ref int64) chan reply {
	w := make(chan reply, 1)
	a.pending[ref] = w
	return w
}

func (a *Agent) takeLocked(ref int64) chan reply {
	w, ok := a.pending[ref]
	if !ok {
		return nil
	}
	delete(a.pending, ref)
	return w
}

func (a *Agent) takeAllLocked() []chan reply {
	out := make([]chan reply, 0, len(a.pending))
	for ref, w := range a.pending {
		out = append(out, w)
		delete(a.pending, ref)
	}
	return out
}

func (a *Agent) await(ctx context.Context, ref int64, w chan reply) (reply, error) {
	select {
	case r := <-w:
		return r, r.err
	case <-ctx.Done():
		a.mu.Lock()
		delete(a.pending, ref)
		a.mu.Unlock()
		return reply{}, ctx.Err()
	}
}

func copySnapshot(s *domain.RoomSnapshot) domain.RoomSnapshot {
	c := *s
	c.Movie = s.Movie.Clone()
	c.Participants = append([]domain.Participant(nil), s.Participants...)
	c.Messages = append([]domain.Message(nil), s.Messages...)
	return c
}
