package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/wire"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.RoomRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, errBadPayload)
		return
	}
	code, ok := domain.ParseRoomCode(p.RoomCode)
	if !ok {
		ctl.replyError(conn, p.Ref, domain.ErrRoomNotFound)
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(code)).Msg("join")
	if _, err := ctl.Orch.JoinAndReply(ctx, sid, code, p.Ref); err != nil {
		ctl.replyError(conn, p.Ref, err)
	}
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.RoomRequest
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	code, err := parseCode(p.RoomCode)
	if err != nil {
		ctl.replyError(conn, p.Ref, err)
		return
	}
	if code == "" {
		code, _, _ = ctl.Orch.Registry.RoomOf(sid)
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(code)).Msg("leave")
	if err := ctl.Orch.Leave(ctx, sid, code); err != nil {
		ctl.replyError(conn, p.Ref, err)
		return
	}
	ctl.sendJSON(conn, wire.RoomEvent{Type: wire.TypeRoomLeft, RoomCode: code, Ref: p.Ref})
}

func (ctl *SignalWSController) handleCreateRoom(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.CreateRoom
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad create payload")
		ctl.replyError(conn, p.Ref, errBadPayload)
		return
	}
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	id := sess.Meta()
	if ctl.CreateLimit != nil && !ctl.CreateLimit.Allow(id.UserID) {
		ctl.replyError(conn, p.Ref, domain.ErrRateLimited)
		return
	}
	room, err := ctl.Orch.CreateRoom(ctx, id, p.Movie, p.IsPrivate, p.SubtitlesEnabled)
	if err != nil {
		ctl.replyError(conn, p.Ref, err)
		return
	}
	ctl.sendJSON(conn, wire.RoomCreated{Type: wire.TypeRoomCreated, RoomCode: room.Code, Ref: p.Ref})
}

func (ctl *SignalWSController) handleDeleteRoom(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.RoomRequest
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	code, err := parseCode(p.RoomCode)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	if code == "" {
		code, _, _ = ctl.Orch.Registry.RoomOf(sid)
	}
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	if err := ctl.Orch.DeleteRoom(ctx, sess.Meta(), code); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleChat(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.SendChat
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	code, err := parseCode(string(p.RoomCode))
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	if _, err := ctl.Orch.SendMessage(ctx, sid, code, p.Content); err != nil {
		ctl.sendError(conn, err)
	}
}
