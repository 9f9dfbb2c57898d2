package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/m3rciful/tunebot/internal/config"
)

var (
	initOnce sync.Once

	levelVar slog.LevelVar

	fileSink *lumberjack.Logger

	// L is the base logger. It is wired by Init and safe to use afterwards.
	L *slog.Logger

	// TG logs Telegram transport events.
	TG *slog.Logger
	// STORE logs persistence events.
	STORE *slog.Logger
)

// Init configures the global structured logger. It may be called only once.
func Init(cfg *config.Config) error {
	var initErr error
	initOnce.Do(func() {
		levelVar.Set(selectLevel(cfg))

		out, err := buildOutput(cfg)
		if err != nil {
			initErr = err
			return
		}

		opts := &slog.HandlerOptions{Level: &levelVar}
		var handler slog.Handler
		if selectFormat(cfg) == "text" {
			handler = slog.NewTextHandler(out, opts)
		} else {
			handler = slog.NewJSONHandler(out, opts)
		}

		L = slog.New(handler)
		slog.SetDefault(L)
		wireComponents()
	})
	return initErr
}

func wireComponents() {
	TG = L.With("component", "tg")
	STORE = L.With("component", "store")
}

// Shutdown closes the rotating file sink if one was opened.
func Shutdown() error {
	if fileSink != nil {
		return fileSink.Close()
	}
	return nil
}

func selectLevel(cfg *config.Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func selectFormat(cfg *config.Config) string {
	if cfg == nil {
		return "json"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "kv", "text", "pretty":
		return "text"
	case "json":
		return "json"
	}
	// Prefer human-friendly format when profile indicates debug/dev mode.
	if strings.EqualFold(cfg.Logging.Profile, "debug") || strings.EqualFold(cfg.Logging.Profile, "dev") {
		return "text"
	}
	return "json"
}

func buildOutput(cfg *config.Config) (io.Writer, error) {
	if cfg == nil {
		return os.Stdout, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	file := strings.TrimSpace(cfg.Logging.File)
	if dir == "" || file == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	maxSize := cfg.Logging.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := cfg.Logging.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	fileSink = &lumberjack.Logger{
		Filename:   filepath.Join(dir, file),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, fileSink), nil
}

// Background returns context.Background(); kept for call-site symmetry with Detach.
func Background() context.Context {
	return context.Background()
}

// Component constructs a logger scoped to the provided component attribute.
func Component(name string) *slog.Logger {
	if L == nil {
		return slog.Default()
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return L
	}
	return L.With("component", trimmed)
}

// Event logs with component scope and update metadata resolved from context.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := FromContext(ctx)
	if logg == nil {
		logg = Component(component)
	} else if strings.TrimSpace(component) != "" {
		logg = logg.With("component", component)
	}
	out := make([]slog.Attr, 0, len(attrs)+4)
	if event != "" {
		out = append(out, slog.String("event", event))
	}
	if rid := RIDFrom(ctx); rid != "" {
		out = append(out, slog.String("rid", rid))
	}
	if userID := UserIDFrom(ctx); userID != 0 {
		out = append(out, slog.Int64("user_id", userID))
	}
	if chatID := ChatIDFrom(ctx); chatID != 0 {
		out = append(out, slog.Int64("chat_id", chatID))
	}
	out = append(out, attrs...)
	logg.LogAttrs(ctx, level, event, out...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}
