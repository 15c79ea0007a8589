// Package gpiotest provides a scriptable gpio.Facility for tests.
package gpiotest

import (
	"fmt"
	"sync"
	"time"

	"gregoryjjb/pinrelay/gpio"
)

// Write records a single successful pin write
type Write struct {
	Pin   int
	Level gpio.Level
}

type Facility struct {
	mu sync.Mutex

	// FailOpen makes Open fail for the given pins
	FailOpen map[int]error
	// FailWrite makes Write fail for the given pins
	FailWrite map[int]error
	// FailRelease makes Release fail for the given pins
	FailRelease map[int]error
	// WriteDelay is slept inside every Write
	WriteDelay time.Duration

	opens    map[int]int
	releases map[int]int
	writes   []Write
	closed   bool

	inFlight    int
	maxInFlight int
}

func New() *Facility {
	return &Facility{
		FailOpen:    make(map[int]error),
		FailWrite:   make(map[int]error),
		FailRelease: make(map[int]error),
		opens:       make(map[int]int),
		releases:    make(map[int]int),
	}
}

func (f *Facility) Open(pin int) (gpio.OutputPin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.FailOpen[pin]; ok {
		return nil, err
	}
	if f.opens[pin] > f.releases[pin] {
		return nil, fmt.Errorf("pin %d opened twice", pin)
	}
	f.opens[pin]++
	return &fakePin{f: f, number: pin}, nil
}

func (f *Facility) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *Facility) Opens(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[pin]
}

func (f *Facility) Releases(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases[pin]
}

func (f *Facility) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

func (f *Facility) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// MaxInFlight is the highest number of concurrently executing writes seen
func (f *Facility) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

type fakePin struct {
	f        *Facility
	number   int
	released bool
}

func (p *fakePin) Number() int {
	return p.number
}

func (p *fakePin) Write(level gpio.Level) error {
	p.f.mu.Lock()
	if p.released {
		p.f.mu.Unlock()
		return fmt.Errorf("pin %d written after release", p.number)
	}
	if err, ok := p.f.FailWrite[p.number]; ok {
		p.f.mu.Unlock()
		return err
	}
	p.f.inFlight++
	if p.f.inFlight > p.f.maxInFlight {
		p.f.maxInFlight = p.f.inFlight
	}
	delay := p.f.WriteDelay
	p.f.mu.Unlock()

	time.Sleep(delay)

	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	p.f.inFlight--
	p.f.writes = append(p.f.writes, Write{Pin: p.number, Level: level})
	return nil
}

func (p *fakePin) Release() error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()

	if p.released {
		return nil
	}
	p.released = true
	p.f.releases[p.number]++
	return p.f.FailRelease[p.number]
}
