package domain

import "time"

// RoomSnapshot is the full room view sent to a joining or resyncing client.
type RoomSnapshot struct {
	RoomCode         RoomCode      `json:"roomCode"`
	HostID           UserID        `json:"hostId"`
	IsHost           bool          `json:"isHost"`
	Movie            *Movie        `json:"movie"`
	IsPlaying        bool          `json:"isPlaying"`
	CurrentTime      float64       `json:"currentTime"`
	SubtitlesEnabled bool          `json:"subtitlesEnabled"`
	IsPrivate        bool          `json:"isPrivate"`
	Participants     []Participant `json:"participants"`
	Messages         []Message     `json:"messages,omitempty"`
	LastActivity     time.Time     `json:"lastActivity"`
}

// Snapshot renders the room for viewer. isHost is computed, never stored.
func (r *Room) Snapshot(viewer UserID) RoomSnapshot {
	parts := make([]Participant, len(r.Participants))
	copy(parts, r.Participants)
	return RoomSnapshot{
		RoomCode:         r.Code,
		HostID:           r.HostID,
		IsHost:           r.IsHost(viewer),
		Movie:            r.Movie.Clone(),
		IsPlaying:        r.IsPlaying,
		CurrentTime:      r.CurrentTime,
		SubtitlesEnabled: r.SubtitlesEnabled,
		IsPrivate:        r.IsPrivate,
		Participants:     parts,
		LastActivity:     r.LastActivity,
	}
}
