package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/wire"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePlayback(ctx context.Context, sid core.SessionID, conn *WsSignalConn, typ string, data []byte) {
	var p wire.Playback
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	code, err := parseCode(string(p.RoomCode))
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	switch typ {
	case wire.TypePlay:
		err = ctl.Orch.Play(ctx, sid, code, p.CurrentTime)
	case wire.TypePause:
		err = ctl.Orch.Pause(ctx, sid, code, p.CurrentTime)
	case wire.TypeSeek:
		err = ctl.Orch.Seek(ctx, sid, code, p.CurrentTime)
	}
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", typ).Msg("playback rejected")
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleTimeReport(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.Playback
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	code, err := parseCode(string(p.RoomCode))
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	if err := ctl.Orch.ReportTime(ctx, sid, code, p.CurrentTime); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleSelectVideo(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.SelectVideo
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	code, err := parseCode(string(p.RoomCode))
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	if err := ctl.Orch.SelectVideo(ctx, sid, code, p.Movie); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleToggleSubtitles(ctx context.Context, sid core.SessionID, conn *WsSignalConn, data []byte) {
	var p wire.ToggleSubtitles
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, errBadPayload)
		return
	}
	code, err := parseCode(string(p.RoomCode))
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	if err := ctl.Orch.ToggleSubtitles(ctx, sid, code, p.Enabled); err != nil {
		ctl.sendError(conn, err)
	}
}
