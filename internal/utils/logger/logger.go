package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/open-edge-platform/trunk-libdeps/internal/utils/security"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the verbosity and an optional file that log output is teed to.
type Config struct {
	Level    string
	FilePath string
}

// switchWriter lets tests redirect console output after the core is built.
type switchWriter struct {
	mu  sync.RWMutex
	out io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.out == nil {
		return len(p), nil
	}
	return s.out.Write(p)
}

func (s *switchWriter) Sync() error { return nil }

var (
	mu      sync.RWMutex
	once    sync.Once
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	level   zap.AtomicLevel
	logFile *os.File
	active  Config
	console = &switchWriter{out: os.Stderr}
)

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentConfig().EncoderConfig
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return cfg
}

// build replaces the global logger. Callers must hold mu.
func build(cfg Config) error {
	lvl := parseLevel(cfg.Level)
	if level == (zap.AtomicLevel{}) {
		level = zap.NewAtomicLevelAt(lvl)
	} else {
		level.SetLevel(lvl)
	}

	encCfg := encoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), level),
	}

	path := strings.TrimSpace(cfg.FilePath)
	var file *os.File
	if path != "" {
		var err error
		file, err = openLogFile(path)
		if err != nil {
			return err
		}
		fileCfg := encCfg
		fileCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(fileCfg), zapcore.AddSync(file), level))
	}
	if logFile != nil && logFile != file {
		_ = logFile.Close()
	}
	logFile = file

	base = zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	sugar = base.Sugar()
	zap.ReplaceGlobals(base)
	active = Config{Level: lvl.String(), FilePath: path}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory %q: %w", dir, err)
		}
	}
	f, err := security.SafeOpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("opening log file %q: %w", path, err)
	}
	return f, nil
}

// InitWithConfig installs the global logger, rebuilding it when cfg differs from
// the active configuration. The returned cleanup func syncs and closes the log file.
func InitWithConfig(cfg Config) (*zap.SugaredLogger, func(), error) {
	var err error
	initialized := false
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		err = build(cfg)
		initialized = true
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger initialization failed: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		want := Config{Level: parseLevel(cfg.Level).String(), FilePath: strings.TrimSpace(cfg.FilePath)}
		if want != active {
			if err := build(cfg); err != nil {
				return nil, nil, fmt.Errorf("logger reconfiguration failed: %w", err)
			}
		}
	}
	if sugar == nil {
		return nil, nil, fmt.Errorf("logger initialization failed: no logger built")
	}
	return sugar, cleanupFunc(logFile), nil
}

// InitWithLevel is InitWithConfig without a log file; it panics on failure.
func InitWithLevel(lvl string) (*zap.SugaredLogger, func()) {
	s, cleanup, err := InitWithConfig(Config{Level: lvl})
	if err != nil {
		panic(err)
	}
	return s, cleanup
}

// Logger returns the global sugared logger, initializing it at info level on first use.
func Logger() *zap.SugaredLogger {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if err := build(Config{Level: "info"}); err != nil {
			panic(fmt.Sprintf("logger initialization failed: %v", err))
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func With(args ...interface{}) *zap.SugaredLogger {
	return Logger().With(args...)
}

func cleanupFunc(file *os.File) func() {
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if base != nil {
			_ = base.Sync()
		}
		if file != nil {
			if err := file.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
			}
			if logFile == file {
				logFile = nil
			}
		}
	}
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogLevel changes the level of an initialized logger in place.
func SetLogLevel(lvl string) {
	mu.Lock()
	defer mu.Unlock()
	if level == (zap.AtomicLevel{}) {
		return
	}
	l := parseLevel(lvl)
	level.SetLevel(l)
	active.Level = l.String()
}

// ReplaceStderrWriter swaps the console destination and returns the previous one.
func ReplaceStderrWriter(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	console.mu.Lock()
	defer console.mu.Unlock()
	prev := console.out
	console.out = w
	if prev == nil {
		prev = os.Stderr
	}
	return prev
}
