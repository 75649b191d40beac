package signal

import (
	"fmt"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/wire"
)

var (
	errBadPayload  = fmt.Errorf("%w: bad payload", domain.ErrBadRequest)
	errUnknownType = fmt.Errorf("%w: unknown event type", domain.ErrBadRequest)
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, wire.Envelope{Type: wire.TypePong})
}

// parseCode accepts an empty code, meaning the connection's current room.
// A malformed code cannot name an existing room.
func parseCode(raw string) (domain.RoomCode, error) {
	if raw == "" {
		return "", nil
	}
	code, ok := domain.ParseRoomCode(raw)
	if !ok {
		return "", domain.ErrRoomNotFound
	}
	return code, nil
}
