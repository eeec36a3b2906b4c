// Package relay owns the door strike relay. Only an Actuator ever drives
// it; everything else asks the Actuator to unlock.
package relay

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrActuator wraps every hardware failure while driving the relay.
	ErrActuator = errors.New("relay actuator fault")
	ErrClosed   = errors.New("relay actuator closed")
)

// Line is an acquired relay output.
type Line interface {
	// Set energizes (true) or de-energizes (false) the relay. Polarity is
	// the driver's concern.
	Set(energized bool) error
	// Close releases the underlying resource.
	Close() error
}

// Driver acquires the relay line. The Actuator holds a line only while an
// unlock is in progress.
type Driver interface {
	Open() (Line, error)
	Name() string
}

// LogDriver drives no hardware and logs every transition. Used on hosts
// without a GPIO chip.
type LogDriver struct {
	Logger *slog.Logger
}

func (d LogDriver) Name() string { return "log" }

func (d LogDriver) Open() (Line, error) {
	if d.Logger == nil {
		return nil, fmt.Errorf("%w: log driver has no logger", ErrActuator)
	}
	return logLine{logger: d.Logger.With(slog.String("component", "relay"))}, nil
}

type logLine struct {
	logger *slog.Logger
}

func (l logLine) Set(energized bool) error {
	l.logger.Info("relay set", slog.Bool("energized", energized))
	return nil
}

func (l logLine) Close() error {
	l.logger.Debug("relay released")
	return nil
}
