package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"gregoryjjb/pinrelay/relay"
)

// shutdownTimeout bounds how long in-flight HTTP requests get on exit
const shutdownTimeout = 5 * time.Second

type BuildInfo struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	BuildTime time.Time `json:"build_time"`
}

/////////////////////
// Response helpers

func RespondInternalServiceError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(err.Error()))
}

func RespondJSON(w http.ResponseWriter, body any) {
	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		RespondInternalServiceError(w, err)
	}
}

type statusResponse struct {
	Version   string            `json:"version"`
	Driver    string            `json:"driver"`
	State     relay.RelayState  `json:"state"`
	StartedAt time.Time         `json:"started_at"`
	Uptime    string            `json:"uptime"`
	Pins      []relay.PinStatus `json:"pins"`
}

// NewRouter builds the HTTP surface: the static client assets, the
// websocket channel, and the read-only status endpoints.
func NewRouter(config *Config, buildInfo BuildInfo, rl *relay.Relay) (http.Handler, error) {
	indexTemplate, err := GetIndexTemplate()
	if err != nil {
		return nil, err
	}
	startedAt := time.Now()

	r := chi.NewRouter()
	r.Use(LoggerMiddleware(&log.Logger))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		err := indexTemplate.Execute(w, map[string]any{
			"Version":     buildInfo.Version,
			"AllowedPins": config.AllowedPins,
		})
		if err != nil {
			log.Err(err).Msg("Failed to render index")
		}
	})

	r.Get("/jsgpio-client.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Write(clientScriptEmbed)
	})

	r.Get("/ws", createWebsocketHandler(rl))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			RespondJSON(w, statusResponse{
				Version:   buildInfo.Version,
				Driver:    config.Driver,
				State:     rl.State(),
				StartedAt: startedAt,
				Uptime:    humanize.Time(startedAt),
				Pins:      rl.Pins(),
			})
		})

		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Cache-Control", "no-cache, no-store")
			history := rl.History()
			if history == nil {
				history = []relay.HistoryEntry{}
			}
			RespondJSON(w, history)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r, nil
}

// StartServer serves until ctx is cancelled, then shuts down gracefully
func StartServer(ctx context.Context, config *Config, buildInfo BuildInfo, rl *relay.Relay) error {
	handler, err := NewRouter(config, buildInfo, rl)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    config.Address(),
		Handler: handler,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("listen", srv.Addr).Msg("launching server")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err

	case <-ctx.Done():
		log.Debug().Msg("Closing server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Graceful shutdown did not complete")
			srv.Close()
		}
		if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
