package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrInvalidMovie = errors.New("invalid movie")

// Movie is the selected media descriptor. Source is the one playable URI;
// the legacy videoUrl field exists only on the wire and is derived from it.
type Movie struct {
	ID        string  `bson:"id"`
	Title     string  `bson:"title"`
	Source    string  `bson:"source"`
	Thumbnail string  `bson:"thumbnail,omitempty"`
	Duration  float64 `bson:"duration"`
}

type movieWire struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Source    string  `json:"source"`
	VideoURL  string  `json:"videoUrl"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Duration  float64 `json:"duration"`
}

func (m Movie) MarshalJSON() ([]byte, error) {
	return json.Marshal(movieWire{
		ID:        m.ID,
		Title:     m.Title,
		Source:    m.Source,
		VideoURL:  m.Source,
		Thumbnail: m.Thumbnail,
		Duration:  m.Duration,
	})
}

// UnmarshalJSON accepts videoUrl only when source is absent.
func (m *Movie) UnmarshalJSON(data []byte) error {
	var w movieWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	src := w.Source
	if src == "" {
		src = w.VideoURL
	}
	*m = Movie{
		ID:        w.ID,
		Title:     w.Title,
		Source:    src,
		Thumbnail: w.Thumbnail,
		Duration:  w.Duration,
	}
	return nil
}

func (m *Movie) Validate() error {
	if m == nil {
		return ErrInvalidMovie
	}
	if strings.TrimSpace(m.Source) == "" {
		return errors.Join(ErrInvalidMovie, errors.New("source is required"))
	}
	if m.Duration < 0 {
		return errors.Join(ErrInvalidMovie, errors.New("negative duration"))
	}
	return nil
}

func (m *Movie) Clone() *Movie {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
