package domain

import "time"

// Participant is a roster entry of a room. Unique by UserID within a room.
type Participant struct {
	UserID         UserID     `json:"userId" bson:"userId"`
	Username       string     `json:"username" bson:"username"`
	ProfilePicture string     `json:"profilePicture,omitempty" bson:"profilePicture,omitempty"`
	JoinedAt       *time.Time `json:"joinedAt,omitempty" bson:"joinedAt,omitempty"`
}

// NewParticipant stamps JoinedAt in UTC.
func NewParticipant(id *Identity, at time.Time) Participant {
	joined := at.UTC()
	return Participant{
		UserID:         id.UserID,
		Username:       id.Username,
		ProfilePicture: id.ProfilePicture,
		JoinedAt:       &joined,
	}
}
