//go:build !nogpio

package gpio

import (
	"sync"

	"github.com/pkg/errors"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type periphFacility struct{}

func newPeriph() (Facility, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host.Init failed")
	}
	return periphFacility{}, nil
}

func (periphFacility) Open(pin int) (OutputPin, error) {
	p := gpioreg.ByName(pinName(pin))
	if p == nil {
		return nil, errors.Errorf("no such pin %s", pinName(pin))
	}
	if err := p.Out(pgpio.Low); err != nil {
		return nil, errors.Wrapf(err, "%s: set output failed", pinName(pin))
	}
	return &periphPin{number: pin, pin: p}, nil
}

func (periphFacility) Close() error {
	return nil
}

type periphPin struct {
	mu       sync.Mutex
	number   int
	pin      pgpio.PinIO
	released bool
}

func (p *periphPin) Number() int {
	return p.number
}

func (p *periphPin) Write(level Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return errors.Errorf("pin %d already released", p.number)
	}
	if err := p.pin.Out(pgpio.Level(level)); err != nil {
		return errors.Wrapf(err, "%s: write failed", p.pin.Name())
	}
	return nil
}

func (p *periphPin) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil
	}
	p.released = true
	if err := p.pin.Halt(); err != nil {
		return errors.Wrapf(err, "%s: halt failed", p.pin.Name())
	}
	return nil
}
