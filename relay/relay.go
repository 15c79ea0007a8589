// Package relay owns the claimed GPIO pins and serializes every write
// request through a single goroutine.
package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gregoryjjb/pinrelay/circularbuffer"
	"gregoryjjb/pinrelay/gpio"
	"gregoryjjb/pinrelay/pubsub"
)

type RelayState string

const (
	StateRunning RelayState = "running"
	StateClosing RelayState = "closing"
	StateClosed  RelayState = "closed"
)

// RelayEvent is published to subscribers on lifecycle changes
type RelayEvent struct {
	State RelayState `json:"state"`
}

// PinStatus is the last known state of a claimed pin
type PinStatus struct {
	Pin       int       `json:"pin"`
	Value     int       `json:"value"`
	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type HistoryEntry struct {
	At     time.Time   `json:"at"`
	Source string      `json:"source,omitempty"`
	Result WriteResult `json:"result"`
}

type Options struct {
	// AllowedPins restricts writable pins. Empty allows any pin.
	AllowedPins []int
	// HistorySize is the number of results kept for History
	HistorySize int
}

const DefaultHistorySize = 64

type job struct {
	req   WriteRequest
	reply chan<- WriteResult
}

type Relay struct {
	log      zerolog.Logger
	facility gpio.Facility
	allowed  map[int]bool

	requests chan job
	closing  chan struct{}
	done     chan struct{}
	ps       *pubsub.Pubsub[RelayEvent]
	history  *circularbuffer.CircularBuffer[HistoryEntry]

	statusMu sync.RWMutex
	status   map[int]PinStatus
}

// New creates a relay and starts its loop. The loop runs until ctx is
// cancelled, then releases every claimed pin and closes the facility.
// Done is closed once that cleanup has finished.
func New(ctx context.Context, facility gpio.Facility, opts Options) *Relay {
	size := opts.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}

	var allowed map[int]bool
	if len(opts.AllowedPins) > 0 {
		allowed = make(map[int]bool, len(opts.AllowedPins))
		for _, pin := range opts.AllowedPins {
			allowed[pin] = true
		}
	}

	r := &Relay{
		log:      log.With().Str("component", "relay").Logger(),
		facility: facility,
		allowed:  allowed,
		requests: make(chan job),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		ps:       pubsub.New[RelayEvent](),
		history:  circularbuffer.New[HistoryEntry](size),
		status:   make(map[int]PinStatus),
	}
	go r.run(ctx, NewRegistry())

	return r
}

// Write submits req and blocks until the physical write has completed or
// failed. It always returns exactly one result.
func (r *Relay) Write(ctx context.Context, req WriteRequest) WriteResult {
	reply := make(chan WriteResult, 1)

	select {
	case r.requests <- job{req: req, reply: reply}:
	case <-r.closing:
		return r.reject(req, ErrClosed)
	case <-ctx.Done():
		return r.reject(req, fmt.Errorf("%w: %v", ErrClosed, ctx.Err()))
	}

	// An accepted job is always answered
	return <-reply
}

// Reject records a request that never reached the loop, such as one that
// failed decoding.
func (r *Relay) Reject(res WriteResult, source string) WriteResult {
	r.record(source, res)
	return res
}

func (r *Relay) reject(req WriteRequest, err error) WriteResult {
	return r.Reject(failed(req, err), req.Source)
}

// Subscribe to lifecycle events. Call the returned func to unsubscribe.
func (r *Relay) Subscribe() (func(), <-chan RelayEvent) {
	id, ch := r.ps.Subscribe()
	return func() {
		r.ps.Unsubscribe(id)
	}, ch
}

// State reports where the relay is in its lifecycle
func (r *Relay) State() RelayState {
	select {
	case <-r.done:
		return StateClosed
	default:
	}
	select {
	case <-r.closing:
		return StateClosing
	default:
	}
	return StateRunning
}

// Closing is closed as soon as cleanup begins
func (r *Relay) Closing() <-chan struct{} {
	return r.closing
}

// Done is closed after every pin has been released
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Pins returns a snapshot of the claimed pins
func (r *Relay) Pins() []PinStatus {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()

	pins := make([]PinStatus, 0, len(r.status))
	for _, s := range r.status {
		pins = append(pins, s)
	}
	sort.Slice(pins, func(i, j int) bool {
		return pins[i].Pin < pins[j].Pin
	})
	return pins
}

// History returns the most recent results, oldest first
func (r *Relay) History() []HistoryEntry {
	var entries []HistoryEntry
	r.history.Each(func(e HistoryEntry) {
		entries = append(entries, e)
	})
	return entries
}

func (r *Relay) run(ctx context.Context, registry *Registry) {
	r.log.Info().Msg("Running relay loop")

	for {
		select {
		case j := <-r.requests:
			// A request racing the shutdown signal must not touch hardware
			if ctx.Err() != nil {
				j.reply <- r.reject(j.req, ErrClosed)
				continue
			}
			j.reply <- r.handle(registry, j.req)

		case <-ctx.Done():
			r.cleanup(registry)
			return
		}
	}
}

func (r *Relay) handle(registry *Registry, req WriteRequest) WriteResult {
	hlog := r.log.With().
		Int("pin", req.Pin).
		Int("value", req.Value).
		Str("source", req.Source).
		Logger()

	res := r.write(registry, req)
	if res.OK() {
		hlog.Debug().Msg("Wrote pin")
	} else {
		hlog.Error().Str("kind", res.Kind).Msg(res.Message)
	}

	r.record(req.Source, res)
	return res
}

func (r *Relay) write(registry *Registry, req WriteRequest) WriteResult {
	if r.allowed != nil && !r.allowed[req.Pin] {
		return failed(req, fmt.Errorf("%w: pin %d is not in the allowed set", ErrMalformed, req.Pin))
	}

	level, err := gpio.LevelFromInt(req.Value)
	if err != nil {
		return failed(req, fmt.Errorf("%w: %v", ErrMalformed, err))
	}

	pin, ok := registry.Lookup(req.Pin)
	if !ok {
		pin, err = r.facility.Open(req.Pin)
		if err != nil {
			return failed(req, fmt.Errorf("%w: pin %d: %v", ErrAcquire, req.Pin, err))
		}
		if err := registry.Add(pin); err != nil {
			if rerr := pin.Release(); rerr != nil {
				r.log.Warn().Err(rerr).Int("pin", req.Pin).Msg("Failed to release unregistered pin")
			}
			return failed(req, fmt.Errorf("%w: %v", ErrAcquire, err))
		}
		opensTotal.Inc()
		openPins.Inc()
	}

	if err := pin.Write(level); err != nil {
		return failed(req, fmt.Errorf("%w: pin %d: %v", ErrWrite, req.Pin, err))
	}

	// Status only lists pins with a value that actually reached the hardware
	openedAt := registry.OpenedAt(req.Pin)
	r.setStatus(req.Pin, func(s *PinStatus) {
		s.OpenedAt = openedAt
		s.Value = req.Value
		s.UpdatedAt = time.Now()
	})

	return succeeded(req)
}

func (r *Relay) cleanup(registry *Registry) {
	close(r.closing)
	r.ps.Publish(RelayEvent{State: StateClosing})

	claimed := registry.Len()
	r.log.Info().Ints("pins", registry.Pins()).Msg("Releasing pins")
	released, err := registry.ReleaseAll()
	releasesTotal.Add(float64(released))
	releaseFailuresTotal.Add(float64(claimed - released))
	openPins.Sub(float64(claimed))
	if err != nil {
		r.log.Warn().Err(err).Int("failed", claimed-released).Msg("Some pins failed to release")
	}

	r.statusMu.Lock()
	r.status = make(map[int]PinStatus)
	r.statusMu.Unlock()

	if err := r.facility.Close(); err != nil {
		r.log.Warn().Err(err).Msg("GPIO facility failed to close")
	}

	r.ps.Publish(RelayEvent{State: StateClosed})
	r.log.Info().Int("released", released).Int("failed", claimed-released).Msg("Relay closed")
	close(r.done)
}

func (r *Relay) setStatus(pin int, fn func(*PinStatus)) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()

	s := r.status[pin]
	s.Pin = pin
	fn(&s)
	r.status[pin] = s
}

func (r *Relay) record(source string, res WriteResult) {
	kind := res.Kind
	if res.OK() {
		kind = "ok"
	}
	writesTotal.WithLabelValues(kind).Inc()

	r.history.Push(HistoryEntry{
		At:     time.Now(),
		Source: source,
		Result: res,
	})
}
