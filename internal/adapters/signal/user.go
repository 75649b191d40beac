package signal

import (
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/wire"
)

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, conn *WsSignalConn) {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	id := sess.Meta()
	resp := wire.WhoAmI{
		Type:           wire.TypeWhoAmI,
		UserID:         id.UserID,
		Username:       id.Username,
		ProfilePicture: id.ProfilePicture,
	}
	if code, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		resp.RoomCode = code
	}
	ctl.sendJSON(conn, resp)
}
