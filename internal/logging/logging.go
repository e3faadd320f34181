// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Console selects stderr instead of a log file.
const Console = "console"

// Init parses level and points the logger at path. An empty path or "console" logs to
// stderr; anything else is a rotated log file.
func Init(level, path string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Errorf("Failed parsing log-level %s: %s", level, err)
		return err
	}

	log.SetOutput(Writer(path))
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	log.SetLevel(lvl)
	return nil
}

// Writer returns the output for path.
func Writer(path string) io.Writer {
	if path == "" || path == Console {
		return os.Stderr
	}
	return &lumberjack.Logger{
		// Log file absolute path, os agnostic
		Filename:   filepath.ToSlash(path),
		MaxSize:    5, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
}
