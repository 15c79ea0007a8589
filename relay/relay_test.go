package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gregoryjjb/pinrelay/gpio"
	"gregoryjjb/pinrelay/gpio/gpiotest"
	"gregoryjjb/pinrelay/relay"
)

func newTestRelay(t *testing.T, opts relay.Options) (*relay.Relay, *gpiotest.Facility, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	facility := gpiotest.New()
	r := relay.New(ctx, facility, opts)
	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})
	return r, facility, cancel
}

func TestWriteOpensOnceAndEchoes(t *testing.T) {
	ctx := context.Background()
	r, facility, _ := newTestRelay(t, relay.Options{})

	res := r.Write(ctx, relay.WriteRequest{Pin: 12, Value: 1})
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, relay.EventWrote, res.Event())
	assert.Equal(t, 12, res.Pin)
	assert.Equal(t, 1, res.Value)
	assert.Equal(t, 1, facility.Opens(12))

	res = r.Write(ctx, relay.WriteRequest{Pin: 12, Value: 0})
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, 0, res.Value)
	assert.Equal(t, 1, facility.Opens(12), "pin must not be reopened")

	assert.Equal(t, []gpiotest.Write{
		{Pin: 12, Level: gpio.High},
		{Pin: 12, Level: gpio.Low},
	}, facility.Writes())

	pins := r.Pins()
	require.Len(t, pins, 1)
	assert.Equal(t, 12, pins[0].Pin)
	assert.Equal(t, 0, pins[0].Value)
}

func TestWriteAcquireFailure(t *testing.T) {
	r, facility, _ := newTestRelay(t, relay.Options{})
	facility.FailOpen[99] = errors.New("device or resource busy")

	res := r.Write(context.Background(), relay.WriteRequest{Pin: 99, Value: 1})
	assert.False(t, res.OK())
	assert.Equal(t, relay.EventErr, res.Event())
	assert.Equal(t, relay.KindAcquire, res.Kind)
	assert.Equal(t, 99, res.Pin)
	assert.Equal(t, 1, res.Value)
	assert.NotEmpty(t, res.Message)
	assert.Contains(t, res.Message, "busy")
	assert.Empty(t, r.Pins(), "failed pin must not be registered")

	// A later attempt tries again rather than remembering the failure
	delete(facility.FailOpen, 99)
	res = r.Write(context.Background(), relay.WriteRequest{Pin: 99, Value: 1})
	assert.True(t, res.OK(), res.Message)
}

func TestWriteFailureKeepsPinOpen(t *testing.T) {
	r, facility, _ := newTestRelay(t, relay.Options{})
	facility.FailWrite[5] = errors.New("i/o error")

	res := r.Write(context.Background(), relay.WriteRequest{Pin: 5, Value: 1})
	assert.Equal(t, relay.KindWrite, res.Kind)
	assert.Contains(t, res.Message, "i/o error")

	assert.Empty(t, r.Pins(), "a pin is not listed until a write succeeds")

	delete(facility.FailWrite, 5)
	res = r.Write(context.Background(), relay.WriteRequest{Pin: 5, Value: 1})
	assert.True(t, res.OK(), res.Message)
	assert.Equal(t, 1, facility.Opens(5))

	pins := r.Pins()
	require.Len(t, pins, 1)
	assert.Equal(t, 5, pins[0].Pin)
	assert.Equal(t, 1, pins[0].Value)
	assert.False(t, pins[0].OpenedAt.IsZero())
	assert.False(t, pins[0].UpdatedAt.IsZero())
	assert.False(t, pins[0].OpenedAt.After(pins[0].UpdatedAt))
}

func TestWriteValidation(t *testing.T) {
	r, facility, _ := newTestRelay(t, relay.Options{AllowedPins: []int{4, 17}})

	res := r.Write(context.Background(), relay.WriteRequest{Pin: 18, Value: 1})
	assert.Equal(t, relay.KindMalformed, res.Kind)
	assert.Equal(t, 0, facility.Opens(18))

	res = r.Write(context.Background(), relay.WriteRequest{Pin: 17, Value: 2})
	assert.Equal(t, relay.KindMalformed, res.Kind)
	assert.Equal(t, 0, facility.Opens(17))

	res = r.Write(context.Background(), relay.WriteRequest{Pin: 17, Value: 1})
	assert.True(t, res.OK(), res.Message)
}

func TestCleanupReleasesEveryPinOnce(t *testing.T) {
	r, facility, cancel := newTestRelay(t, relay.Options{})
	ctx := context.Background()

	unsub, events := r.Subscribe()
	defer unsub()

	for i := 0; i < 3; i++ {
		require.True(t, r.Write(ctx, relay.WriteRequest{Pin: 12, Value: i % 2}).OK())
	}
	require.True(t, r.Write(ctx, relay.WriteRequest{Pin: 7, Value: 1}).OK())

	cancel()
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("relay did not finish cleanup")
	}

	assert.Equal(t, 1, facility.Releases(12))
	assert.Equal(t, 1, facility.Releases(7))
	assert.True(t, facility.Closed())
	assert.Empty(t, r.Pins())

	assert.Equal(t, relay.RelayEvent{State: relay.StateClosing}, <-events)
	assert.Equal(t, relay.RelayEvent{State: relay.StateClosed}, <-events)

	writes := len(facility.Writes())
	res := r.Write(ctx, relay.WriteRequest{Pin: 12, Value: 1})
	assert.Equal(t, relay.KindClosed, res.Kind)
	assert.NotEmpty(t, res.Message)
	assert.Len(t, facility.Writes(), writes, "no writes after cleanup")
}

func TestCleanupContinuesPastReleaseFailure(t *testing.T) {
	r, facility, cancel := newTestRelay(t, relay.Options{})
	ctx := context.Background()
	facility.FailRelease[3] = errors.New("unexport failed")

	require.True(t, r.Write(ctx, relay.WriteRequest{Pin: 3, Value: 1}).OK())
	require.True(t, r.Write(ctx, relay.WriteRequest{Pin: 4, Value: 1}).OK())

	cancel()
	<-r.Done()

	assert.Equal(t, 1, facility.Releases(3))
	assert.Equal(t, 1, facility.Releases(4))
	assert.True(t, facility.Closed())
	assert.Equal(t, relay.StateClosed, r.State())
}

func TestState(t *testing.T) {
	r, _, cancel := newTestRelay(t, relay.Options{})
	assert.Equal(t, relay.StateRunning, r.State())

	cancel()
	<-r.Done()
	for i := 0; i < 100; i++ {
		require.Equal(t, relay.StateClosed, r.State())
	}
}

func TestWritesAreSerialized(t *testing.T) {
	r, facility, _ := newTestRelay(t, relay.Options{})
	facility.WriteDelay = 5 * time.Millisecond

	var wg sync.WaitGroup
	results := make([]relay.WriteResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Write(context.Background(), relay.WriteRequest{Pin: i % 4, Value: 1})
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.True(t, res.OK(), res.Message)
	}
	assert.Equal(t, 1, facility.MaxInFlight(), "writes must never overlap")
	for pin := 0; pin < 4; pin++ {
		assert.Equal(t, 1, facility.Opens(pin))
	}
}

func TestHistory(t *testing.T) {
	r, facility, _ := newTestRelay(t, relay.Options{HistorySize: 2})
	facility.FailOpen[9] = errors.New("nope")
	ctx := context.Background()

	r.Write(ctx, relay.WriteRequest{Pin: 1, Value: 1, Source: "a"})
	r.Write(ctx, relay.WriteRequest{Pin: 2, Value: 1, Source: "b"})
	r.Write(ctx, relay.WriteRequest{Pin: 9, Value: 0, Source: "c"})

	history := r.History()
	require.Len(t, history, 2)
	assert.Equal(t, "b", history[0].Source)
	assert.Equal(t, "c", history[1].Source)
	assert.Equal(t, relay.KindAcquire, history[1].Result.Kind)
}
