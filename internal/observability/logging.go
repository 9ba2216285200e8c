// Package observability provides structured logging for the game server.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/tictactoe/internal/config"
)

// ServiceName is attached to every log entry produced by NewLogger.
const ServiceName = "tictactoe"

// NewLogger creates a structured logger from the given logging configuration.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.InitialFields = map[string]interface{}{"service": ServiceName}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// Common field constructors so every package logs the same keys.

// SessionID tags a log entry with a session identifier.
func SessionID(id string) zap.Field { return zap.String("session_id", id) }

// RemoteAddr tags a log entry with a client transport address.
func RemoteAddr(addr string) zap.Field { return zap.String("remote_addr", addr) }

// RoomID tags a log entry with a room identifier.
func RoomID(id int64) zap.Field { return zap.Int64("room_id", id) }

// GridSize tags a log entry with a board size.
func GridSize(n int) zap.Field { return zap.Int("grid_size", n) }

// Symbol tags a log entry with a player symbol.
func Symbol(s string) zap.Field { return zap.String("symbol", s) }
