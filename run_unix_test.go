//go:build unix

package main_test

import (
	"context"
	"syscall"
	"testing"
	"time"

	pinrelay "gregoryjjb/pinrelay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"gregoryjjb/pinrelay/gpio/gpiotest"
	"gregoryjjb/pinrelay/relay"
)

func TestRunReleasesPinsOnSignal(t *testing.T) {
	config := newTestConfig(t,
		pinrelay.Flags{},
		map[string]string{
			"HOST": "127.0.0.1",
			"PORT": "18226",
		},
		`driver = "simulated"`,
	)
	facility := gpiotest.New()

	runDone := make(chan error, 1)
	go func() {
		runDone <- pinrelay.Run(config, pinrelay.BuildInfo{Version: "0.0.0"}, facility, syscall.SIGUSR1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, waitForReady(ctx, 10*time.Second, "http://127.0.0.1:18226/api/status"))

	c, _, err := websocket.Dial(ctx, "ws://127.0.0.1:18226/ws", nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	for _, pin := range []int{12, 7} {
		send(t, c, relay.EventWrite, map[string]int{"pin": pin, "value": 1})
		event, _ := receive(t, c)
		require.Equal(t, relay.EventWrote, event)
	}

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after signal")
	}

	assert.Equal(t, 1, facility.Releases(12))
	assert.Equal(t, 1, facility.Releases(7))
	assert.True(t, facility.Closed())
}
