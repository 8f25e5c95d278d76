// Package logger holds the process-wide structured logger. Output goes to
// a rotating file under the log directory and, when asked, to stderr.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/beaver/internal/constants"
)

// Logger is nil until Init; the helpers below are no-ops until then.
var Logger *log.Logger

type Config struct {
	Debug  bool
	LogDir string
	// Stderr mirrors output to stderr even when Debug is off.
	Stderr bool
	// JSON writes one JSON object per line instead of logfmt-style text.
	JSON bool
}

func Init(cfg Config) error {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return err
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, constants.AppName+".log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	var w io.Writer = file
	if cfg.Debug || cfg.Stderr {
		w = io.MultiWriter(os.Stderr, file)
	}

	opts := log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           log.InfoLevel,
		Prefix:          constants.AppName,
	}
	if cfg.Debug {
		opts.Level = log.DebugLevel
	}
	if cfg.JSON {
		opts.Formatter = log.JSONFormatter
	}
	Logger = log.NewWithOptions(w, opts)
	return nil
}

// With returns a child logger carrying keyvals on every line. Before Init
// it returns a logger that discards everything.
func With(keyvals ...interface{}) *log.Logger {
	if Logger == nil {
		return log.New(io.Discard)
	}
	return Logger.With(keyvals...)
}

func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}
