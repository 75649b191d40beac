package domain

import "errors"

var (
	ErrAuth               = errors.New("authentication failed")
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrNotJoined          = errors.New("not joined to room")
	ErrConnection         = errors.New("connection error")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrCodeSpaceExhausted = errors.New("room code space exhausted")
	ErrRateLimited        = errors.New("rate limited")
	ErrBadRequest         = errors.New("bad request")
)

// Wire error codes.
const (
	CodeAuth               = "AUTH_ERROR"
	CodeRoomNotFound       = "ROOM_NOT_FOUND"
	CodeNotAuthorized      = "NOT_AUTHORIZED"
	CodeNotJoined          = "NOT_JOINED"
	CodeBadRequest         = "BAD_REQUEST"
	CodeRateLimited        = "RATE_LIMITED"
	CodeCodeSpaceExhausted = "CODE_SPACE_EXHAUSTED"
	CodeConnection         = "CONNECTION_ERROR"
	CodeTimeout            = "CONNECTION_TIMEOUT"
	CodeInternal           = "INTERNAL_ERROR"
)

// Code maps an error to its wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return CodeAuth
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrNotAuthorized):
		return CodeNotAuthorized
	case errors.Is(err, ErrNotJoined):
		return CodeNotJoined
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrCodeSpaceExhausted):
		return CodeCodeSpaceExhausted
	case errors.Is(err, ErrConnectionTimeout):
		return CodeTimeout
	case errors.Is(err, ErrConnection):
		return CodeConnection
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrInvalidMovie),
		errors.Is(err, ErrMessageEmpty),
		errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrUsernameEmpty),
		errors.Is(err, ErrUsernameTooLong):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}

// FromCode is the client-side inverse of Code.
func FromCode(code string) error {
	switch code {
	case CodeAuth:
		return ErrAuth
	case CodeRoomNotFound:
		return ErrRoomNotFound
	case CodeNotAuthorized:
		return ErrNotAuthorized
	case CodeNotJoined:
		return ErrNotJoined
	case CodeRateLimited:
		return ErrRateLimited
	case CodeCodeSpaceExhausted:
		return ErrCodeSpaceExhausted
	case CodeTimeout:
		return ErrConnectionTimeout
	case CodeConnection:
		return ErrConnection
	case CodeBadRequest:
		return ErrBadRequest
	default:
		return errors.New("server error: " + code)
	}
}

// Retryable reports whether err is a transient connection-class failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrConnectionTimeout)
}
