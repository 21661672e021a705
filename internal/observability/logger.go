package observability

import (
	"context"
	"io"
	"log/slog"
	"regexp"

	"github.com/nlsql/nlsql/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

var (
	dsnCredentialsPattern = regexp.MustCompile(`(://)([^:/@]+):([^@]+)(@)`)
	passwordPairPattern   = regexp.MustCompile(`(?i)(password=)([^\s;&]+)`)
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	options := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, options)
	} else {
		handler = slog.NewTextHandler(writer, options)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// MaskSecrets hides passwords in DSNs and key=value connection strings before they reach a log line.
func MaskSecrets(value string) string {
	masked := dsnCredentialsPattern.ReplaceAllString(value, "$1$2:***$4")
	return passwordPairPattern.ReplaceAllString(masked, "$1***")
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
