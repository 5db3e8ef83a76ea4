package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/im-context-relay/config"
)

// ProvideLogger builds the process logger. The level lives in a LevelVar so a config reload can change it.
func ProvideLogger(cfg *config.Config) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Log.Level))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", ServiceName,
		"version", version,
	)
	slog.SetDefault(logger)
	return logger, level
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}

func parseLevel(raw string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// watchConfig applies log level changes and starts the file watcher.
func watchConfig(cfg *config.Config, level *slog.LevelVar, logger *slog.Logger) {
	cfg.OnChange(func(next *config.Config) {
		level.Set(parseLevel(next.Log.Level))
		logger.Info("CONFIG_RELOADED", "log_level", next.Log.Level)
	})
	cfg.Watch()
}
