// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Options struct {
	Level  string // trace|debug|info|warn|error
	Format string // text|json
	Output string // stdout|file|both
	Path   string // log file when Output includes file

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Stdout replaces os.Stdout, for tests.
	Stdout io.Writer
}

// New returns a configured logger and a closer for its rotating file, if any.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	output := strings.ToLower(opts.Output)
	if output == "" {
		output = "stdout"
	}
	if output == "file" || output == "both" {
		if opts.Path == "" {
			return nil, nil, fmt.Errorf("log output %q needs a log path", output)
		}
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   opts.Compress,
		}
		writers = append(writers, file)
		closer = file
	}
	if output == "stdout" || output == "both" {
		writers = append(writers, stdout)
	}
	if len(writers) == 0 {
		return nil, nil, fmt.Errorf("unknown log output %q", opts.Output)
	}
	logger.SetOutput(io.MultiWriter(writers...))
	return logger, closer, nil
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
