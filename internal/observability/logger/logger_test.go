package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsActorAndRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := actorcontext.WithActor(context.Background(), 42, actorcontext.RoleWaiter)
	ctx = WithRequestID(ctx, " req-1 ")

	WithContext(ctx, zap.New(core)).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "waiter", fields["actor_role"])
	assert.Equal(t, "42", fields["actor_id"])
}

func TestGinMiddlewareEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
}

func TestGormTraceLevels(t *testing.T) {
	l := NewGormLogger(zap.NewNop(), DefaultGormLoggerConfig())

	_, ok := l.traceLevel(time.Millisecond, nil)
	assert.False(t, ok)

	level, ok := l.traceLevel(time.Second, nil)
	assert.True(t, ok)
	assert.Equal(t, zapcore.WarnLevel, level)

	level, ok = l.traceLevel(time.Millisecond, errors.New("deadlock"))
	assert.True(t, ok)
	assert.Equal(t, zapcore.ErrorLevel, level)

	_, ok = l.traceLevel(time.Millisecond, gormlogger.ErrRecordNotFound)
	assert.False(t, ok)

	silent := l.LogMode(gormlogger.Silent).(*GormLogger)
	_, ok = silent.traceLevel(time.Second, errors.New("deadlock"))
	assert.False(t, ok)
}

func TestVerb(t *testing.T) {
	assert.Equal(t, "SELECT", verb("select * from orders"))
	assert.Equal(t, "INSERT", verb("  INSERT INTO users (id) VALUES (1)"))
	assert.Equal(t, "OTHER", verb("PRAGMA foreign_keys"))
}
