package signal

import (
	"context"
	"time"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		ctl.Orch.OnDisconnect(sid)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleSignal(ctx, sid, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	typ, err := wire.TypeOf(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, errBadPayload)
		return
	}

	switch typ {
	case wire.TypeJoinRoom:
		ctl.handleJoin(ctx, sid, c, data)
	case wire.TypeLeaveRoom:
		ctl.handleLeave(ctx, sid, c, data)
	case wire.TypeCreateRoom:
		ctl.handleCreateRoom(ctx, sid, c, data)
	case wire.TypeDeleteRoom:
		ctl.handleDeleteRoom(ctx, sid, c, data)
	case wire.TypePlay, wire.TypePause, wire.TypeSeek:
		ctl.handlePlayback(ctx, sid, c, typ, data)
	case wire.TypeTimeReport:
		ctl.handleTimeReport(ctx, sid, c, data)
	case wire.TypeSelectVideo:
		ctl.handleSelectVideo(ctx, sid, c, data)
	case wire.TypeToggleSubtitles:
		ctl.handleToggleSubtitles(ctx, sid, c, data)
	case wire.TypeChatMessage:
		ctl.handleChat(ctx, sid, c, data)
	case wire.TypePing:
		ctl.handlePing(c)
	case wire.TypeWhoAmI:
		ctl.handleWhoAmI(sid, c)
	default:
		log.Warn().Str("module", "signal").Str("type", typ).Msg("unknown signal")
		ctl.sendError(c, errUnknownType)
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := wire.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, err error) {
	ctl.sendJSON(c, wire.NewError(err))
}

// replyError answers the request tagged ref.
func (ctl *SignalWSController) replyError(c core.SignalConnection, ref int64, err error) {
	e := wire.NewError(err)
	e.Ref = ref
	ctl.sendJSON(c, e)
}
