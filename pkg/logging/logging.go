// Пакет logging настраивает структурированный логгер slog
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Config параметры логгера
type Config struct {
	// Writer куда писать логи, по умолчанию os.Stdout
	Writer io.Writer
	// Level уровень: debug, info, warn, error
	Level string
	// JSON включает JSON-формат вместо цветного текста
	JSON      bool
	AddSource bool
}

// ParseLevel переводит строку в уровень slog, неизвестные значения дают info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New создаёт логгер: JSON для сбора логов или tint для терминала
func New(cfg Config) *slog.Logger {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	level := ParseLevel(cfg.Level)
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Writer, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource})
	} else {
		handler = tint.NewHandler(cfg.Writer, &tint.Options{
			Level:      level,
			AddSource:  cfg.AddSource,
			TimeFormat: "2006-01-02 15:04:05",
		})
	}
	return slog.New(handler)
}
