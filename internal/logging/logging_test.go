package logging_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/WatchParty/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, logging.ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, logging.ParseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, logging.ParseLevel("bogus"))
}

func TestGinMiddleware_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(logging.GinMiddleware())
	var sawLogger bool
	r.GET("/x", func(c *gin.Context) {
		sawLogger = logging.Ctx(c.Request.Context()) != nil
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(logging.HeaderRequestID, "req-42")
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(logging.HeaderRequestID))
	assert.True(t, sawLogger)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get(logging.HeaderRequestID))
}

func TestCtx_FallsBackToGlobal(t *testing.T) {
	assert.NotNil(t, logging.Ctx(context.Background()))
}
