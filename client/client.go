// Package client talks to a pinrelay server. It holds no pin state:
// Write sends a request and notifications are handed to the callbacks
// given in Config.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"gregoryjjb/pinrelay/relay"
)

type Config struct {
	// URL of the server channel, e.g. ws://raspberrypi:8000/ws
	URL string
	// Wrote is called for every successful write
	Wrote func(relay.WriteResult)
	// Err is called for every failed write
	Err func(relay.WriteResult)
}

type Client struct {
	log    zerolog.Logger
	config Config
	conn   *websocket.Conn

	done chan struct{}
	err  error
	mu   sync.Mutex
}

// Dial connects to the server and starts dispatching notifications
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("client: URL is required")
	}

	conn, _, err := websocket.Dial(ctx, config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", config.URL, err)
	}

	c := &Client{
		log:    log.With().Str("component", "client").Str("url", config.URL).Logger(),
		config: config,
		conn:   conn,
		done:   make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// Write asks the server to set pin to value (0 or 1). The outcome arrives
// later through the Wrote or Err callback.
func (c *Client) Write(ctx context.Context, pin int, value int) error {
	env, err := relay.NewEnvelope(relay.EventWrite, relay.WriteRequest{Pin: pin, Value: value})
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, c.conn, env)
}

// Close disconnects and waits for the dispatch loop to stop
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	<-c.done
	return err
}

// Done is closed when the connection has ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, nil for a normal close
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		var env relay.Envelope
		if err := wsjson.Read(context.Background(), c.conn, &env); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
				c.log.Debug().Err(err).Msg("Connection ended")
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env relay.Envelope) {
	var res relay.WriteResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		c.log.Warn().Err(err).Str("event", env.Event).Msg("Dropping undecodable notification")
		return
	}

	switch env.Event {
	case relay.EventWrote:
		if c.config.Wrote != nil {
			c.config.Wrote(res)
		}
	case relay.EventErr:
		if c.config.Err != nil {
			c.config.Err(res)
		}
	default:
		c.log.Debug().Str("event", env.Event).Msg("Ignoring unknown event")
	}
}
