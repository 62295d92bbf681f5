package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hostwell/guildvault/internal/config"
)

var (
	mu      sync.Mutex
	logger  *slog.Logger
	rotator io.Closer
	nop     = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// Init configures the process-wide logger. Calling it again replaces the
// previous configuration.
func Init(cfg config.LoggingConfig) (*slog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	output, closer, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}

	options := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, options)
	} else {
		handler = slog.NewJSONHandler(output, options)
	}

	if rotator != nil {
		rotator.Close()
	}
	rotator = closer
	logger = slog.New(handler)

	slog.SetDefault(logger)
	log.SetFlags(0)
	log.SetOutput(stdlogBridge{logger})

	return logger, nil
}

// L returns the configured logger. Before Init it discards everything, so
// library code can log unconditionally.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return nop
	}
	return logger
}

// Close releases the rotating log file, if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}

// openOutput returns stdout alone, or stdout teed into a rotating file
// when a log file is configured.
func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	path := strings.TrimSpace(cfg.File)
	if path == "" {
		return os.Stdout, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, file), file, nil
}

// stdlogBridge routes stray stdlib log output through slog.
type stdlogBridge struct {
	logger *slog.Logger
}

func (b stdlogBridge) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		b.logger.Info(msg)
	}
	return len(p), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
