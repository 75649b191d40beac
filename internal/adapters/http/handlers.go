package http

import (
	"net/http"
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

type sessionRequest struct {
	Token string `json:"token" binding:"required"`
}

type userResponse struct {
	UserID         domain.UserID `json:"userId"`
	Username       string        `json:"username"`
	ProfilePicture string        `json:"profilePicture,omitempty"`
}

func toUser(id *domain.Identity) userResponse {
	return userResponse{UserID: id.UserID, Username: id.Username, ProfilePicture: id.ProfilePicture}
}

type createRoomRequest struct {
	Movie            *domain.Movie `json:"movie"`
	IsPrivate        bool          `json:"isPrivate"`
	SubtitlesEnabled bool          `json:"subtitlesEnabled"`
}

type roomCreatedResponse struct {
	RoomCode domain.RoomCode `json:"roomCode"`
}

// roomSummary is what anyone holding the code may see before joining.
type roomSummary struct {
	RoomCode         domain.RoomCode `json:"roomCode"`
	HostID           domain.UserID   `json:"hostId"`
	Movie            *domain.Movie   `json:"movie"`
	IsPlaying        bool            `json:"isPlaying"`
	CurrentTime      float64         `json:"currentTime"`
	SubtitlesEnabled bool            `json:"subtitlesEnabled"`
	IsPrivate        bool            `json:"isPrivate"`
	Participants     int             `json:"participantCount"`
	LastActivity     time.Time       `json:"lastActivity"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.Orch.Registry.Count(),
		"rooms":       len(s.Orch.Groups.List()),
	})
}

func (s *Server) createSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.ErrBadRequest)
		return
	}
	id, err := s.Auth.Authenticate(c.Request.Context(), req.Token)
	if err != nil {
		abortWithError(c, err)
		return
	}
	sess := sessions.Default(c)
	sess.Set(sessionTokenKey, req.Token)
	if err := sess.Save(); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUser(id))
}

func (s *Server) deleteSession(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	_ = sess.Save()
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, toUser(identity(c)))
}

func (s *Server) createRoom(c *gin.Context) {
	var req createRoomRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, domain.ErrBadRequest)
			return
		}
	}
	id := identity(c)
	if lim := s.Controller.CreateLimit; lim != nil && !lim.Allow(id.UserID) {
		abortWithError(c, domain.ErrRateLimited)
		return
	}
	room, err := s.Orch.CreateRoom(c.Request.Context(), id, req.Movie, req.IsPrivate, req.SubtitlesEnabled)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, roomCreatedResponse{RoomCode: room.Code})
}

func (s *Server) getRoom(c *gin.Context) {
	code, ok := domain.ParseRoomCode(c.Param("code"))
	if !ok {
		abortWithError(c, domain.ErrRoomNotFound)
		return
	}
	r, err := s.Orch.Rooms.GetRoom(c.Request.Context(), code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomSummary{
		RoomCode:         r.Code,
		HostID:           r.HostID,
		Movie:            r.Movie,
		IsPlaying:        r.IsPlaying,
		CurrentTime:      r.CurrentTime,
		SubtitlesEnabled: r.SubtitlesEnabled,
		IsPrivate:        r.IsPrivate,
		Participants:     len(r.Participants),
		LastActivity:     r.LastActivity,
	})
}

func (s *Server) deleteRoom(c *gin.Context) {
	code, ok := domain.ParseRoomCode(c.Param("code"))
	if !ok {
		abortWithError(c, domain.ErrRoomNotFound)
		return
	}
	if err := s.Orch.DeleteRoom(c.Request.Context(), identity(c), code); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
