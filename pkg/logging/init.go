// Package logging configures the default slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

const (
	JSON = "json"
	Text = "text"
	Tint = "tint"
)

// Types lists the accepted logging types.
var Types = []string{JSON, Text, Tint}

// Initialize installs a default logger of the given type and level writing
// to w. Commands log to stderr so stdout stays free for exported code.
func Initialize(w io.Writer, loggingType string, logLevelName string) error {
	var logLevel slog.Level
	err := logLevel.UnmarshalText([]byte(logLevelName))
	if err != nil {
		return fmt.Errorf("could not parse log level: %v", err)
	}

	var (
		logHandlerOptions = slog.HandlerOptions{
			AddSource: logLevel <= slog.LevelDebug,
			Level:     logLevel,
		}
		logHandler slog.Handler
	)

	switch loggingType {
	case JSON:
		logHandler = slog.NewJSONHandler(w, &logHandlerOptions)
	case Text:
		logHandler = slog.NewTextHandler(w, &logHandlerOptions)
	case Tint:
		logHandler = tint.NewHandler(w, &tint.Options{
			AddSource: logHandlerOptions.AddSource,
			Level:     logHandlerOptions.Level,
		})
	default:
		return fmt.Errorf("unknown logging type: %s", loggingType)
	}

	slog.SetDefault(slog.New(logHandler))
	slog.Debug("logging initialized", "logLevel", logLevel)
	return nil
}
