package bindings

import (
	"context"
	"slices"

	"github.com/GriffinCanCode/apiclient-shell/internal/infrastructure/logging"
)

// Logger serves the logger channel. Messages are written to the controller log.
type Logger struct {
	logger *logging.Logger
}

// NewLogger creates the log forwarding handler.
func NewLogger(logger *logging.Logger) *Logger {
	return &Logger{logger: logger.Named("renderer")}
}

func (l *Logger) Channel() string { return ChannelLogger }

func (l *Logger) Handle(_ context.Context, call *Call) (any, error) {
	level, _ := stringArg(call.Args, 0)
	if !slices.Contains(logging.Levels, level) {
		return nil, invalid("Unknown log level: %v", arg(call.Args, 0))
	}
	l.logger.Forward(level, call.Args[1:])
	return nil, nil
}
