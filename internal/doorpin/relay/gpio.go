package relay

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIODriver drives the relay through a Linux GPIO character device line.
type GPIODriver struct {
	Chip      string // e.g. "gpiochip0"
	Offset    int
	ActiveLow bool // true when the relay board energizes on a low line
}

func (d GPIODriver) Name() string { return "gpio" }

// Open requests the line as an output, initially de-energized.
func (d GPIODriver) Open() (Line, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.WithConsumer("doorpin"),
		gpiocdev.AsOutput(0),
	}
	if d.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	l, err := gpiocdev.RequestLine(d.Chip, d.Offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s:%d: %v", ErrActuator, d.Chip, d.Offset, err)
	}
	return gpioLine{line: l}, nil
}

type gpioLine struct {
	line *gpiocdev.Line
}

func (g gpioLine) Set(energized bool) error {
	v := 0
	if energized {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g gpioLine) Close() error {
	return g.line.Close()
}
