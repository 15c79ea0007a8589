package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"gregoryjjb/pinrelay/relay"
)

const notifyTimeout = 5 * time.Second

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "pinrelay",
	Name:      "active_sessions",
	Help:      "Number of connected websocket clients",
})

func createWebsocketHandler(rl *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
			return
		}
		defer c.Close(websocket.StatusInternalError, "the sky is falling")

		s := &session{
			conn:  c,
			relay: rl,
			log: log.With().
				Str("component", "session").
				Str("remote", r.RemoteAddr).
				Logger(),
			remote: r.RemoteAddr,
		}
		s.serve(r.Context())
	}
}

// session is one connected client. Every write frame it reads gets
// exactly one notification back on the same connection.
type session struct {
	conn   *websocket.Conn
	relay  *relay.Relay
	log    zerolog.Logger
	remote string
}

func (s *session) serve(ctx context.Context) {
	s.log.Info().Msg("Incoming socket connection")
	activeSessions.Inc()
	defer activeSessions.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe, events := s.relay.Subscribe()
	defer unsubscribe()

	// Subscribed before this check, so a shutdown is either seen here
	// or delivered as an event
	if s.relay.State() != relay.StateRunning {
		s.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.State != relay.StateClosing {
					continue
				}
				s.log.Debug().Msg("Relay closing, dropping connection")
				s.conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.log.Info().Msg("Socket closed")
			default:
				s.log.Debug().Err(err).Msg("Socket read failed")
			}
			return
		}

		if err := s.dispatch(ctx, typ, data); err != nil {
			s.log.Debug().Err(err).Msg("Failed to send notification")
			return
		}
	}
}

func (s *session) dispatch(ctx context.Context, typ websocket.MessageType, data []byte) error {
	if typ != websocket.MessageText {
		return s.malformed(ctx, relay.WriteRequest{}, nil, fmt.Errorf("%w: binary frames are not supported", relay.ErrMalformed))
	}

	var env relay.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return s.malformed(ctx, relay.WriteRequest{}, nil, fmt.Errorf("%w: %v", relay.ErrMalformed, err))
	}

	switch env.Event {
	case relay.EventWrite:
		s.log.Debug().RawJSON("data", nullIfEmpty(env.Data)).Msg("Write event")

		req, err := relay.DecodeWriteRequest(env.Data)
		if err != nil {
			return s.malformed(ctx, req, env.Data, err)
		}
		req.Source = s.remote
		return s.notify(ctx, s.relay.Write(ctx, req))

	default:
		s.log.Warn().Str("event", env.Event).Msg("Ignoring unknown event")
		return nil
	}
}

func (s *session) malformed(ctx context.Context, req relay.WriteRequest, raw json.RawMessage, err error) error {
	s.log.Error().Err(err).Msg("Malformed request")
	res := s.relay.Reject(relay.MalformedResult(req, raw, err), s.remote)
	return s.notify(ctx, res)
}

func (s *session) notify(ctx context.Context, res relay.WriteResult) error {
	env, err := relay.NewEnvelope(res.Event(), res)
	if err != nil {
		return err
	}
	if err := writeTimeout(ctx, notifyTimeout, s.conn, env); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}

func writeTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return wsjson.Write(ctx, c, msg)
}

func nullIfEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
