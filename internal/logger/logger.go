// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger is VexFS's ambient logging layer: a leveled wrapper
// around log/slog supporting text and JSON output, an extra TRACE level
// below DEBUG, and optional file-backed rotation via lumberjack. No error
// message generated here is load-bearing for clients; per SPEC_FULL.md §7,
// diagnostic context stays in the log. A correlation id can be attached to
// a request's context (see WithCorrelationID); no control-plane op returns
// it to a client.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels, in addition to slog's built-ins. TRACE sits below DEBUG;
// OFF disables all output.
const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelOff   slog.Level = 16
)

// Severity names accepted in configuration (cfg.LoggingConfig.Severity).
const (
	Trace   = "TRACE"
	Debug   = "DEBUG"
	Info    = "INFO"
	Warning = "WARNING"
	Error   = "ERROR"
	Off     = "OFF"
)

type loggerFactory struct {
	file      *os.File
	sysWriter io.Writer
	format    string
	level     string
	rotate    lumberjack.Logger
}

var (
	defaultLoggerFactory = &loggerFactory{
		sysWriter: os.Stderr,
		format:    "text",
		level:     Info,
	}
	programLevel  = new(slog.LevelVar)
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(os.Stderr, programLevel))
)

func setLoggingLevel(level string, v *slog.LevelVar) {
	switch level {
	case Trace:
		v.Set(LevelTrace)
	case Debug:
		v.Set(LevelDebug)
	case Info:
		v.Set(LevelInfo)
	case Warning:
		v.Set(LevelWarn)
	case Error:
		v.Set(LevelError)
	case Off:
		v.Set(LevelOff)
	default:
		v.Set(LevelInfo)
	}
}

// createHandler builds a slog.Handler that writes either text
// (key="val" severity=LEVEL message="...") or JSON according to
// defaultLoggerFactory.format, replacing slog's own "level" attribute with
// a "severity" attribute carrying our level names (including TRACE).
func (f *loggerFactory) createHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				a.Key = "severity"
				a.Value = slog.StringValue(severityName(level))
			}
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format("2006/01/02 15:04:05.000000"))
			}
			return a
		},
	}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func severityName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// Init configures the package-level logger. format is "text" or "json";
// level is one of Trace/Debug/Info/Warning/Error/Off.
func Init(format, level string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	defaultLoggerFactory = &loggerFactory{sysWriter: w, format: format, level: level}
	setLoggingLevel(level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(w, programLevel))
}

// InitFile points the logger at a rotating log file, per cfg.LoggingConfig.
// Rotation parameters mirror gcsfuse's LogRotateConfig knobs.
func InitFile(path, format, level string, maxSizeMB, backups int, compress bool) error {
	rotate := lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: backups,
		Compress:   compress,
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	f.Close()

	defaultLoggerFactory = &loggerFactory{file: f, format: format, level: level, rotate: rotate}
	setLoggingLevel(level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(&rotate, programLevel))
	return nil
}

// SetFormat changes the output format ("text" or "json") of the default
// logger without disturbing its level or destination.
func SetFormat(format string) {
	defaultLoggerFactory.format = format
	var w io.Writer = os.Stderr
	switch {
	case defaultLoggerFactory.file != nil:
		w = &defaultLoggerFactory.rotate
	case defaultLoggerFactory.sysWriter != nil:
		w = defaultLoggerFactory.sysWriter
	}
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(w, programLevel))
}

// NewStdLogger bridges the default slog logger to the stdlib *log.Logger
// shape that jacobsa/fuse's MountConfig.ErrorLogger/DebugLogger expect,
// the same bridging role gcsfuse's own NewLegacyLogger plays.
func NewStdLogger(level slog.Level, prefix string) *log.Logger {
	l := slog.NewLogLogger(defaultLogger.Handler(), level)
	l.SetPrefix(prefix)
	return l
}

func Tracef(format string, args ...any) { defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...)) }
func Debugf(format string, args ...any) { defaultLogger.Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { defaultLogger.Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { defaultLogger.Error(fmt.Sprintf(format, args...)) }

// correlationIDKey is the context key under which WithCorrelationID stashes
// a request's correlation id; CorrelationID reads it back. The logging
// functions in this package do not add it to log lines, and no
// control-plane op reports it.
type correlationIDKey struct{}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func CorrelationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey{}).(string)
	return id, ok
}
