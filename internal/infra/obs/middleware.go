package obs

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Middleware tags every request with an id and writes one access-log line for it.
type Middleware struct {
	Logger *slog.Logger
	// Quiet lists route patterns logged at Debug only, such as probes.
	Quiet []string
}

type requestIDKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID honours an incoming X-Request-ID so ids survive a proxy hop.
func (m Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey{}, id))
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// LoggerMiddleware logs after the handler: Error for 5xx, Warn for 4xx, Info otherwise.
func (m Middleware) LoggerMiddleware() gin.HandlerFunc {
	quiet := make(map[string]bool, len(m.Quiet))
	for _, route := range m.Quiet {
		quiet[route] = true
	}
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		if m.Logger == nil {
			return
		}
		ctx := c.Request.Context()
		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		case quiet[c.FullPath()]:
			level = slog.LevelDebug
		}
		if !m.Logger.Enabled(ctx, level) {
			return
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("request_id", RequestIDFromContext(ctx)),
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, slog.String("booking_id", id))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("err", c.Errors.Last().Error()))
		}
		m.Logger.LogAttrs(ctx, level, "http request", attrs...)
	}
}
