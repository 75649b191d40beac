// Package logging configures the global zerolog logger and request logging.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dkeye/WatchParty/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	HeaderRequestID = "X-Request-ID"

	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
)

// Init sets the global logger. Call before anything logs.
func Init(cfg config.LogConfig) {
	var w io.Writer = os.Stderr
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Ctx returns the request-scoped logger, or the global one.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &log.Logger
	}
	return l
}

// GinMiddleware tags each request with an id, exposes a child logger on
// the request context, and logs the outcome.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		child := log.With().
			Str("module", "http").
			Str(FieldRequestID, reqID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Logger()

		c.Header(HeaderRequestID, reqID)
		c.Request = c.Request.WithContext(child.WithContext(c.Request.Context()))

		c.Next()

		evt := child.Info().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start))
		if uid := c.GetString(FieldUserID); uid != "" {
			evt = evt.Str(FieldUserID, uid)
		}
		evt.Msg("request completed")
	}
}
