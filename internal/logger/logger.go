package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls the global logger.
type Options struct {
	Level  string
	Pretty bool
	File   string // optional, appended to in addition to stdout
	MaxMB  int    // rotate File on Init when it exceeds this size
	// FileOnly skips stdout, used by the terminal client; without File logs are discarded
	FileOnly bool
}

var (
	mu      sync.Mutex
	logFile *os.File
	writer  io.Writer = os.Stdout
)

// Init configures the global zerolog logger.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if v := strings.TrimSpace(opts.Level); v != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("parse log level %q: %w", v, err)
		}
		level = parsed
	}

	var out io.Writer = os.Stdout
	switch {
	case opts.FileOnly:
		out = io.Discard
	case opts.Pretty:
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}

	if opts.File != "" {
		f, err := openLogFile(opts.File, opts.MaxMB)
		if err != nil {
			return err
		}
		closeFile()
		logFile = f
		if opts.FileOnly {
			out = f
		} else {
			out = zerolog.MultiLevelWriter(out, f)
		}
	}

	zerolog.SetGlobalLevel(level)
	writer = out
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	log.Debug().Str("level", level.String()).Str("file", opts.File).Msg("logger initialized")
	return nil
}

func openLogFile(path string, maxMB int) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Rotate if file is too large
	if info, err := os.Stat(path); err == nil && maxMB > 0 && info.Size() > int64(maxMB)*1024*1024 {
		backupPath := fmt.Sprintf("%s.%d", path, time.Now().Unix())
		if err := os.Rename(path, backupPath); err != nil {
			return nil, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Writer returns the writer backing the global logger.
func Writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return writer
}

// Close closes the log file, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeFile()
}

func closeFile() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// LogPanic logs a recovered panic with stack trace
func LogPanic(r any) {
	log.Error().Str("panic", fmt.Sprint(r)).Str("stack", string(debug.Stack())).Msg("💥 panic recovered")
}
