// Package wire defines the JSON events exchanged over the room socket.
// Every frame is an object with a "type" discriminator.
package wire

import (
	"encoding/json"

	"github.com/dkeye/WatchParty/internal/domain"
)

// Client to server.
const (
	TypeJoinRoom        = "join-room"
	TypeLeaveRoom       = "leave-room"
	TypePlay            = "play"
	TypePause           = "pause"
	TypeSeek            = "seek"
	TypeTimeReport      = "time-report"
	TypeToggleSubtitles = "toggle-subtitles"
	TypeSelectVideo     = "select-video"
	TypeChatMessage     = "chat-message"
	TypeCreateRoom      = "create-room"
	TypeDeleteRoom      = "delete-room"
	TypePing            = "ping"
	TypeWhoAmI          = "whoami"
)

// Server to client. chat-message and whoami are shared with the above.
const (
	TypeRoomJoined        = "room-joined"
	TypeRoomCreated       = "room-created"
	TypeRoomStateUpdate   = "room-state-update"
	TypeParticipantJoined = "participant-joined"
	TypeParticipantLeft   = "participant-left"
	TypeVideoPlayed       = "video-played"
	TypeVideoPaused       = "video-paused"
	TypeVideoSeeked       = "video-seeked"
	TypeRoomLeft          = "room-left"
	TypeRoomClosed        = "room-closed"
	TypePong              = "pong"
	TypeError             = "error"
)

type Envelope struct {
	Type string `json:"type"`
}

// RoomRequest covers join-room, leave-room and delete-room. Ref is echoed
// back on room-joined so a client can discard stale replies.
type RoomRequest struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
	Ref      int64  `json:"ref,omitempty"`
}

// Playback covers play, pause, seek and time-report in both directions.
type Playback struct {
	Type        string          `json:"type"`
	RoomCode    domain.RoomCode `json:"roomCode,omitempty"`
	CurrentTime float64         `json:"currentTime"`
	ActorID     domain.UserID   `json:"actorId,omitempty"`
}

type ToggleSubtitles struct {
	Type     string          `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode,omitempty"`
	Enabled  bool            `json:"enabled"`
}

type SelectVideo struct {
	Type     string          `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode,omitempty"`
	Movie    *domain.Movie   `json:"movie"`
}

type SendChat struct {
	Type     string          `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode,omitempty"`
	Content  string          `json:"content"`
}

type CreateRoom struct {
	Type             string        `json:"type"`
	Ref              int64         `json:"ref,omitempty"`
	Movie            *domain.Movie `json:"movie,omitempty"`
	IsPrivate        bool          `json:"isPrivate"`
	SubtitlesEnabled bool          `json:"subtitlesEnabled"`
}

// RoomState is room-joined or room-state-update.
type RoomState struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref,omitempty"`
	domain.RoomSnapshot
}

type RoomCreated struct {
	Type     string          `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode"`
	Ref      int64           `json:"ref,omitempty"`
}

// RoomEvent is room-left or room-closed.
type RoomEvent struct {
	Type     string          `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode"`
	Ref      int64           `json:"ref,omitempty"`
}

type Participant struct {
	Type     string          `json:"type"`
	RoomCode domain.RoomCode `json:"roomCode"`
	UserID   domain.UserID   `json:"userId"`
	Username string          `json:"username"`
}

type ChatMessage struct {
	Type string `json:"type"`
	domain.Message
}

type WhoAmI struct {
	Type           string          `json:"type"`
	UserID         domain.UserID   `json:"userId"`
	Username       string          `json:"username"`
	ProfilePicture string          `json:"profilePicture,omitempty"`
	RoomCode       domain.RoomCode `json:"roomCode,omitempty"`
}

// Error carries the Ref of the request it answers, when there is one.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Ref     int64  `json:"ref,omitempty"`
}

// NewError renders err as an error event with its wire code.
func NewError(err error) Error {
	code := domain.Code(err)
	msg := err.Error()
	if code == domain.CodeInternal {
		msg = "internal error"
	}
	return Error{Type: TypeError, Message: msg, Code: code}
}

func Encode(v any) ([]byte, error) { return json.Marshal(v) }

// TypeOf reads the discriminator of a raw frame.
func TypeOf(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
