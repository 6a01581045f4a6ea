package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"roominfo/internal/config"
)

// Setup installs the default slog logger configured by LOG_FORMAT and LOG_LEVEL.
func Setup(cfg *config.Config) {
	slog.SetDefault(New(os.Stdout, cfg.LogFormat, cfg.LogLevel))
}

func New(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewContextHandler(handler))
}

func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type fieldsKey struct{}

// Fields are request scoped attributes added to every record logged with the context.
type Fields struct {
	UserID string
	RoomID string
}

func WithFields(ctx context.Context, fields Fields) context.Context {
	current := GetFields(ctx)
	if fields.UserID != "" {
		current.UserID = fields.UserID
	}
	if fields.RoomID != "" {
		current.RoomID = fields.RoomID
	}
	return context.WithValue(ctx, fieldsKey{}, current)
}

func GetFields(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	fields, _ := ctx.Value(fieldsKey{}).(Fields)
	return fields
}

// ContextHandler enriches records with the Fields stored in the context.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := GetFields(ctx)
	if fields.UserID != "" {
		r.AddAttrs(slog.String("user_id", fields.UserID))
	}
	if fields.RoomID != "" {
		r.AddAttrs(slog.String("rid", fields.RoomID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
