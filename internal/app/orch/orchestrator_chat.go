package orch

import (
	"context"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/wire"
	"github.com/rs/zerolog/log"
)

// SendMessage stores a chat line and delivers it to the whole room,
// sender included.
func (o *Orchestrator) SendMessage(ctx context.Context, sid core.SessionID, code domain.RoomCode, content string) (*domain.Message, error) {
	cur, sess, err := o.joined(sid, code)
	if err != nil {
		return nil, err
	}
	id := sess.Meta()
	msg, err := domain.NewMessage(cur, id, content, o.now())
	if err != nil {
		return nil, err
	}
	if o.ChatLimit != nil && !o.ChatLimit.Allow(id.UserID) {
		return nil, domain.ErrRateLimited
	}
	o.deliver(ctx, msg)
	return msg, nil
}

func (o *Orchestrator) systemMessage(ctx context.Context, code domain.RoomCode, text string) {
	o.deliver(ctx, domain.NewSystemMessage(code, text, o.now()))
}

func (o *Orchestrator) deliver(ctx context.Context, msg *domain.Message) {
	if o.Chat != nil {
		if err := o.Chat.Append(ctx, msg); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("room", string(msg.RoomCode)).Msg("chat append failed")
		}
	}
	o.broadcast(msg.RoomCode, "", wire.ChatMessage{Type: wire.TypeChatMessage, Message: *msg})
}
