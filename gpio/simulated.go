package gpio

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Simulated is an in-memory facility that logs pin changes instead
// of touching hardware.
type Simulated struct {
	log    zerolog.Logger
	mu     sync.Mutex
	claims map[int]Level
}

func NewSimulated() *Simulated {
	s := &Simulated{
		log:    logger(),
		claims: make(map[int]Level),
	}
	s.log.Debug().Msg("GPIO will be simulated")
	return s
}

func (s *Simulated) Open(pin int) (OutputPin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pin < 0 {
		return nil, errors.Errorf("invalid pin %d", pin)
	}
	if _, claimed := s.claims[pin]; claimed {
		return nil, errors.Errorf("%s is busy", pinName(pin))
	}
	s.claims[pin] = Low
	s.printStates()

	return &simulatedPin{sim: s, number: pin}, nil
}

func (s *Simulated) Close() error {
	s.log.Debug().Msg("Simulated GPIO closing")
	return nil
}

// Claimed returns the currently claimed pins in ascending order
func (s *Simulated) Claimed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pins := make([]int, 0, len(s.claims))
	for pin := range s.claims {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

// Caller must hold s.mu
func (s *Simulated) printStates() {
	pins := make([]int, 0, len(s.claims))
	for pin := range s.claims {
		pins = append(pins, pin)
	}
	sort.Ints(pins)

	var str strings.Builder
	for _, pin := range pins {
		if s.claims[pin] {
			str.WriteString("#")
		} else {
			str.WriteString(" ")
		}
	}
	s.log.Debug().Ints("claimed", pins).Str("pins", str.String()).Msg("GPIO")
}

type simulatedPin struct {
	sim      *Simulated
	number   int
	released bool
}

func (p *simulatedPin) Number() int {
	return p.number
}

func (p *simulatedPin) Write(level Level) error {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	if p.released {
		return errors.Errorf("%s already released", pinName(p.number))
	}
	p.sim.claims[p.number] = level
	p.sim.printStates()
	return nil
}

func (p *simulatedPin) Release() error {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	if p.released {
		return nil
	}
	p.released = true
	delete(p.sim.claims, p.number)
	return nil
}
