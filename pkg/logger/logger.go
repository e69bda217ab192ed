package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type Logger interface {
	Info(msg string, values ...any)
	Warn(msg string, values ...any)
	Error(msg string, values ...any)
	Debug(msg string, values ...any)
	Panic(message string, values ...any)
	Fatal(error error, values ...any)
	Printf(format string, args ...interface{})
}

// Config derives the zap configuration for one process: JSON output in
// production, console output otherwise, always tagged with the service name
// so the api and dispatcher processes are distinguishable in a shared sink.
// LOG_LEVEL overrides the environment default when it parses.
func Config(service string) zap.Config {
	var config zap.Config
	if os.Getenv("LOG_ENV") == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}
	config.InitialFields = map[string]interface{}{"service": service}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := zap.ParseAtomicLevel(lvl); err == nil {
			config.Level = parsed
		}
	}
	return config
}

func init() {
	if _, err := NewLogger(Config(serviceName())); err != nil {
		panic(err)
	}
}

// serviceName defaults to the binary name (api, dispatcher, smsmock, cli);
// SERVICE_NAME overrides it for containerized runs with mangled argv.
func serviceName() string {
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		return v
	}
	return filepath.Base(os.Args[0])
}

func Info(msg string, values ...any) {
	GetLogger().Info(msg, values...)
}

func Warn(msg string, values ...any) {
	GetLogger().Warn(msg, values...)
}

func Error(msg string, values ...any) {
	GetLogger().Error(msg, values...)
}

func Debug(msg string, values ...any) {
	GetLogger().Debug(msg, values...)
}

func Panic(msg string, values ...any) {
	GetLogger().Panic(msg, values...)
}

func Fatal(error error, values ...any) {
	GetLogger().Fatal(error, values...)
}
