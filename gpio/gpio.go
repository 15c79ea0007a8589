package gpio

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func logger() zerolog.Logger {
	return log.With().Str("component", "gpio").Logger()
}

// Level is the binary state of an output pin
type Level bool

const (
	Low  Level = false
	High Level = true
)

// LevelFromInt converts a wire value (0 or 1) to a Level
func LevelFromInt(v int) (Level, error) {
	switch v {
	case 0:
		return Low, nil
	case 1:
		return High, nil
	}
	return Low, fmt.Errorf("invalid pin value %d, must be 0 or 1", v)
}

func (l Level) Int() int {
	if l {
		return 1
	}
	return 0
}

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Facility is the OS-level GPIO provider. It hands out exclusive
// output handles for individual pins.
type Facility interface {
	// Open claims the pin in output mode.
	Open(pin int) (OutputPin, error)
	// Close releases the facility itself. Pins must be released first.
	Close() error
}

// OutputPin is a claimed output pin.
type OutputPin interface {
	Number() int
	Write(Level) error
	// Release returns the pin to the OS. Calling it more than once is a no-op.
	Release() error
}

// Driver names accepted by New
const (
	DriverRPIO      = "rpio"
	DriverPeriph    = "periph"
	DriverSimulated = "simulated"
)

// New creates the named facility
func New(driver string) (Facility, error) {
	l := logger()
	l.Debug().Str("driver", driver).Msg("Initializing GPIO facility")

	switch driver {
	case DriverRPIO:
		return newRPIO()
	case DriverPeriph:
		return newPeriph()
	case DriverSimulated, "":
		return NewSimulated(), nil
	}
	return nil, errors.Errorf("unknown GPIO driver %q (rpio|periph|simulated)", driver)
}

func pinName(pin int) string {
	return "GPIO" + strconv.Itoa(pin)
}
