package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/WatchParty/internal/adapters/signal"
	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/app/orch"
	"github.com/dkeye/WatchParty/internal/config"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/dkeye/WatchParty/internal/logging"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionName     = "WatchPartySession"
	sessionTokenKey = "token"
	identityKey     = "identity"
)

// Server holds what the handlers need. Controller serves /api/ws.
type Server struct {
	Orch       *orch.Orchestrator
	Auth       *app.Authenticator
	Controller *signal.SignalWSController
}

// SessionTokenMiddleware exposes a token stored by POST /api/session so
// browsers can open the socket without an Authorization header.
func SessionTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok && tok != "" {
			c.Set("session_token", tok)
		}
		c.Next()
	}
}

// tokenFrom checks the bearer header, then the token query parameter,
// then the session cookie.
func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	return c.GetString("session_token")
}

// RequireIdentity authenticates the request or aborts it.
func (s *Server) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := s.Auth.Authenticate(c.Request.Context(), tokenFrom(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Set(logging.FieldUserID, string(id.UserID))
		c.Next()
	}
}

func identity(c *gin.Context) *domain.Identity {
	id, _ := c.MustGet(identityKey).(*domain.Identity)
	return id
}

func SetupRouter(cfg *config.Config, s *Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(logging.GinMiddleware())
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(SessionTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/health", s.health)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.POST("/session", s.createSession)
	api.DELETE("/session", s.deleteSession)
	api.GET("/rooms/:code", s.getRoom)

	authed := api.Group("", s.RequireIdentity())
	authed.GET("/me", s.me)
	authed.POST("/rooms", s.createRoom)
	authed.DELETE("/rooms/:code", s.deleteRoom)

	api.GET("/ws", func(c *gin.Context) {
		id, err := s.Auth.Authenticate(c.Request.Context(), tokenFrom(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		log.Info().Str("module", "adapters.http").Str("user", string(id.UserID)).Msg("ws endpoint hit")
		s.Controller.HandleSignal(c, id)
	})

	return r
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrConnectionTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrCodeSpaceExhausted):
		return http.StatusServiceUnavailable
	}
	if domain.Code(err) == domain.CodeBadRequest {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorBody{Code: domain.Code(err), Message: msg})
}
