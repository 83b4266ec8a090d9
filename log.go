package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"gopkg.in/natefinch/lumberjack.v2"
)

// logConfig is read from the environment.
type logConfig struct {
	Debug      bool   `env:"TIERCACHE_DEBUG"`
	File       string `env:"TIERCACHE_LOG_FILE"`
	MaxSize    int    `env:"TIERCACHE_LOG_MAX_SIZE" envDefault:"10"`
	MaxBackups int    `env:"TIERCACHE_LOG_MAX_BACKUPS" envDefault:"3"`
}

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "tiercache").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tiercache.log"), nil
}

// setupLog sends logs to a rotating file when TIERCACHE_DEBUG is set and
// discards them otherwise. The returned function closes the log file.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	cfg, err := env.ParseAs[logConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log config: %w", err)
	}
	if !cfg.Debug {
		return func() error { return nil }, nil
	}

	logFile := cfg.File
	if logFile == "" {
		if logFile, err = getLogFilePath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  true,
	}
	log.SetOutput(rotator)
	log.SetLevel(log.DebugLevel)
	log.SetReportTimestamp(true)
	return rotator.Close, nil
}
