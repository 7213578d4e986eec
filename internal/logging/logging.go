// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Output targets.
const (
	OutputStdout = "stdout"
	OutputFile   = "file"
	OutputBoth   = "both"
)

// Config controls level, format and destination of log output.
type Config struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" envDefault:"info"`
	Format     string `yaml:"format" env:"LOG_FORMAT" envDefault:"text"` // text or json
	Output     string `yaml:"output" env:"LOG_OUTPUT" envDefault:"stdout"`
	File       string `yaml:"file" env:"LOG_FILE" envDefault:"logs/prokinobot.log"`
	MaxSize    int    `yaml:"max-size" env:"LOG_MAX_SIZE" envDefault:"50"` // MB
	MaxBackups int    `yaml:"max-backups" env:"LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAge     int    `yaml:"max-age" env:"LOG_MAX_AGE" envDefault:"14"` // days
	Compress   bool   `yaml:"compress" env:"LOG_COMPRESS" envDefault:"true"`
}

// Setup applies cfg to the standard logger. The returned closer releases the log file,
// if one was opened.
func Setup(cfg Config) (io.Closer, error) {
	return configure(log.StandardLogger(), cfg)
}

func configure(logger *log.Logger, cfg Config) (io.Closer, error) {
	level, err := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&log.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: log.FieldMap{
				log.FieldKeyTime: "timestamp",
				log.FieldKeyMsg:  "message",
			},
		})
	} else {
		logger.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	output := strings.ToLower(strings.TrimSpace(cfg.Output))
	if output == "" {
		output = OutputStdout
	}
	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	switch output {
	case OutputStdout, OutputFile, OutputBoth:
	default:
		return nil, fmt.Errorf("logging: unknown output %q", cfg.Output)
	}
	if output == OutputFile || output == OutputBoth {
		if strings.TrimSpace(cfg.File) == "" {
			return nil, fmt.Errorf("logging: file output needs a file path")
		}
		if errMkdir := os.MkdirAll(filepath.Dir(cfg.File), 0o755); errMkdir != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", errMkdir)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		writers = append(writers, fileWriter)
		closer = fileWriter
	}
	if output == OutputStdout || output == OutputBoth {
		writers = append(writers, os.Stdout)
	}
	logger.SetOutput(io.MultiWriter(writers...))

	logger.WithFields(log.Fields{
		"level":  logger.GetLevel().String(),
		"format": cfg.Format,
		"output": output,
	}).Debug("logger configured")
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
