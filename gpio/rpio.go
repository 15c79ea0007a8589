//go:build !nogpio

package gpio

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// rpioMaxPin is the highest BCM line reachable through the GPIO register block
const rpioMaxPin = 53

type rpioFacility struct{}

func newRPIO() (Facility, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "rpio.Open failed")
	}
	return rpioFacility{}, nil
}

func (rpioFacility) Open(pin int) (OutputPin, error) {
	if pin < 0 || pin > rpioMaxPin {
		return nil, errors.Errorf("pin %d is outside the BCM range 0-%d", pin, rpioMaxPin)
	}

	p := rpio.Pin(pin)
	p.Output()
	return &rpioPin{pin: p}, nil
}

func (rpioFacility) Close() error {
	return errors.Wrap(rpio.Close(), "rpio.Close failed")
}

type rpioPin struct {
	mu       sync.Mutex
	pin      rpio.Pin
	released bool
}

func (p *rpioPin) Number() int {
	return int(p.pin)
}

func (p *rpioPin) Write(level Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return errors.Errorf("pin %d already released", p.pin)
	}
	if level {
		p.pin.High()
	} else {
		p.pin.Low()
	}
	return nil
}

// Release drives the pin low and switches it back to input, which is
// the state the SoC comes up in.
func (p *rpioPin) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil
	}
	p.released = true
	p.pin.Low()
	p.pin.Input()
	return nil
}
