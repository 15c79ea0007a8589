package relay

import (
	"fmt"
	"sort"
	"time"

	aggerr "github.com/ewoutp/go-aggregate-error"

	"gregoryjjb/pinrelay/gpio"
)

// Registry maps pin numbers to their open handles. It is not safe for
// concurrent use; the relay loop is its only owner.
type Registry struct {
	pins   map[int]gpio.OutputPin
	opened map[int]time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		pins:   make(map[int]gpio.OutputPin),
		opened: make(map[int]time.Time),
	}
}

func (r *Registry) Lookup(pin int) (gpio.OutputPin, bool) {
	p, ok := r.pins[pin]
	return p, ok
}

// Add registers an open handle. A pin already present is never replaced.
func (r *Registry) Add(p gpio.OutputPin) error {
	if _, exists := r.pins[p.Number()]; exists {
		return fmt.Errorf("pin %d is already registered", p.Number())
	}
	r.pins[p.Number()] = p
	r.opened[p.Number()] = time.Now()
	return nil
}

// OpenedAt is when pin was added, zero if it is not registered
func (r *Registry) OpenedAt(pin int) time.Time {
	return r.opened[pin]
}

func (r *Registry) Len() int {
	return len(r.pins)
}

// Pins returns the registered pin numbers in ascending order
func (r *Registry) Pins() []int {
	pins := make([]int, 0, len(r.pins))
	for pin := range r.pins {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

// ReleaseAll releases every handle and empties the registry. Every handle
// is attempted even when some fail; released counts only the successes
// and the failures are returned together.
func (r *Registry) ReleaseAll() (released int, err error) {
	var ae aggerr.AggregateError
	for _, pin := range r.Pins() {
		if err := r.pins[pin].Release(); err != nil {
			ae.Add(fmt.Errorf("release pin %d: %w", pin, err))
		} else {
			released++
		}
		delete(r.pins, pin)
		delete(r.opened, pin)
	}
	return released, ae.AsError()
}
