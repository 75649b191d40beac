package domain

import (
	"regexp"
	"strings"
	"time"
)

const (
	RoomCodeLength   = 6
	RoomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var roomCodeRe = regexp.MustCompile(`^[0-9A-Z]{6}$`)

type RoomCode string

// ParseRoomCode upper-cases user input and checks the code shape.
func ParseRoomCode(raw string) (RoomCode, bool) {
	c := strings.ToUpper(strings.TrimSpace(raw))
	if !roomCodeRe.MatchString(c) {
		return "", false
	}
	return RoomCode(c), true
}

func (c RoomCode) Valid() bool { return roomCodeRe.MatchString(string(c)) }

// Room is the persisted room document. HostID is fixed at creation.
type Room struct {
	Code             RoomCode
	HostID           UserID
	Movie            *Movie
	IsPrivate        bool
	SubtitlesEnabled bool
	IsPlaying        bool
	CurrentTime      float64
	Participants     []Participant
	CreatedAt        time.Time
	LastActivity     time.Time
}

// RoomPatch carries the fields a caller intends to change; nil means keep.
type RoomPatch struct {
	Movie            *Movie
	IsPrivate        *bool
	SubtitlesEnabled *bool
	IsPlaying        *bool
	CurrentTime      *float64
}

func (r *Room) IsHost(id UserID) bool { return id != "" && r.HostID == id }

func (r *Room) HasParticipant(id UserID) bool {
	for _, p := range r.Participants {
		if p.UserID == id {
			return true
		}
	}
	return false
}

// AddParticipant appends p unless its UserID is already present.
func (r *Room) AddParticipant(p Participant) bool {
	if r.HasParticipant(p.UserID) {
		return false
	}
	r.Participants = append(r.Participants, p)
	return true
}

func (r *Room) RemoveParticipant(id UserID) bool {
	for i, p := range r.Participants {
		if p.UserID == id {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// Apply merges patch into the room. Unspecified fields are preserved.
func (r *Room) Apply(p RoomPatch) {
	if p.Movie != nil {
		r.Movie = p.Movie.Clone()
	}
	if p.IsPrivate != nil {
		r.IsPrivate = *p.IsPrivate
	}
	if p.SubtitlesEnabled != nil {
		r.SubtitlesEnabled = *p.SubtitlesEnabled
	}
	if p.IsPlaying != nil {
		r.IsPlaying = *p.IsPlaying
	}
	if p.CurrentTime != nil {
		r.CurrentTime = *p.CurrentTime
	}
	r.Normalize()
}

// Normalize enforces: currentTime >= 0, and no movie means time 0, paused.
func (r *Room) Normalize() {
	if r.CurrentTime < 0 {
		r.CurrentTime = 0
	}
	if r.Movie == nil {
		r.CurrentTime = 0
		r.IsPlaying = false
	}
}

func (r *Room) Touch(now time.Time) { r.LastActivity = now.UTC() }

// Clone returns a deep copy so callers never share the stored document.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Movie = r.Movie.Clone()
	c.Participants = make([]Participant, len(r.Participants))
	copy(c.Participants, r.Participants)
	return &c
}
