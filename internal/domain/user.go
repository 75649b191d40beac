// Package domain contains entities and their invariants, no transport or storage.
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDEmpty     = errors.New("user id empty")
)

type UserID string

// Identity is who a connection is, as vouched for by the authenticator.
// It is the only source of UserID for mutating room operations.
type Identity struct {
	UserID         UserID `json:"userId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// NewIdentity validates and normalizes identity claims.
func NewIdentity(id UserID, username, picture string) (*Identity, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		id = id[:MaxUserIDLen]
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = string(id)
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &Identity{UserID: id, Username: username, ProfilePicture: picture}, nil
}

func (i *Identity) SetUsername(username string) error {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	i.Username = username
	return nil
}
