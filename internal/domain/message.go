package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SystemSender     = "System"
	MaxMessageLength = 1000
)

var (
	ErrMessageEmpty   = errors.New("message empty")
	ErrMessageTooLong = errors.New("message too long")
)

type Message struct {
	ID        string    `json:"id"`
	RoomCode  RoomCode  `json:"roomCode"`
	Sender    string    `json:"sender"`
	SenderID  UserID    `json:"senderId,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMessage(code RoomCode, from *Identity, content string, at time.Time) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	return &Message{
		ID:        uuid.NewString(),
		RoomCode:  code,
		Sender:    from.Username,
		SenderID:  from.UserID,
		Content:   content,
		Timestamp: at.UTC(),
	}, nil
}

func NewSystemMessage(code RoomCode, content string, at time.Time) *Message {
	return &Message{
		ID:        uuid.NewString(),
		RoomCode:  code,
		Sender:    SystemSender,
		Content:   content,
		Timestamp: at.UTC(),
	}
}
