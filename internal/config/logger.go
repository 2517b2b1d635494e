package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger 按配置初始化全局 logrus 日志
func InitLogger(cfg *Config) error {
	return ConfigureLogger(logrus.StandardLogger(), cfg.Log)
}

// ConfigureLogger applies level, format and output to logger.
func ConfigureLogger(logger *logrus.Logger, cfg LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", cfg.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		w, err := rotatingWriter(cfg)
		if err != nil {
			return err
		}
		logger.SetOutput(w)
	case "both":
		w, err := rotatingWriter(cfg)
		if err != nil {
			return err
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, w))
	default:
		logger.SetOutput(os.Stdout)
	}

	logger.Infof("Logger initialized - Level: %s, Format: %s, Output: %s", cfg.Level, cfg.Format, cfg.Output)
	return nil
}

func rotatingWriter(cfg LogConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}
