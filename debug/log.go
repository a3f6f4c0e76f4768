package debug

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	logger  = zap.NewNop()
	sugar   = logger.Sugar()
	enabled bool
)

// DefaultPath is ~/.config/inkdeck/debug.log
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "inkdeck", "debug.log")
}

// Enable starts logging to path at the given level ("debug", "info", ...).
// An empty path uses DefaultPath.
func Enable(path, level string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}
	if path == "" {
		path = DefaultPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	lvl := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return err
		}
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	logger = l
	sugar = l.Sugar()
	enabled = true
	sugar.Named("debug").Debug("=== Debug logging started ===")
	return nil
}

// Disable flushes and stops logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	_ = logger.Sync()
	logger = zap.NewNop()
	sugar = logger.Sugar()
	enabled = false
}

// SetLogger installs l as the backing logger (tests use an observer core)
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
	sugar = l.Sugar()
	enabled = true
}

// Logger returns the structured logger, named after category when given
func Logger(category ...string) *zap.SugaredLogger {
	mu.Lock()
	s := sugar
	mu.Unlock()
	for _, c := range category {
		s = s.Named(c)
	}
	return s
}

// Log writes a debug message under a category
func Log(category, format string, args ...any) {
	Logger(category).Debugf(format, args...)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
