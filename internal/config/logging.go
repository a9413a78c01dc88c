package config

import (
	"io"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logs hands out component loggers that share one output.
type Logs struct {
	out  io.Writer
	file *lumberjack.Logger
}

// NewLogs writes to w and, when a log file is configured, to a rotating
// copy of it as well.
func (c LogConfig) NewLogs(w io.Writer) *Logs {
	if c.File == "" {
		return &Logs{out: w}
	}
	file := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
	}
	return &Logs{out: io.MultiWriter(w, file), file: file}
}

// Logger returns a logger for a component, e.g. Logger("sync") logs with
// the "[sync] " prefix.
func (l *Logs) Logger(component string) *log.Logger {
	return log.New(l.out, "["+component+"] ", log.LstdFlags)
}

// Close closes the log file, if any.
func (l *Logs) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
