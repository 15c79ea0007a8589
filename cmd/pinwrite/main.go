package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"gregoryjjb/pinrelay/client"
	"gregoryjjb/pinrelay/relay"
)

func main() {
	var url string
	var pin int
	var value int
	var timeout time.Duration

	pflag.StringVarP(&url, "url", "u", "ws://localhost:8000/ws", "Websocket URL of the pinrelay server")
	pflag.IntVarP(&pin, "pin", "p", -1, "Pin to write")
	pflag.IntVarP(&value, "value", "v", 1, "Value to write (0|1)")
	pflag.DurationVarP(&timeout, "timeout", "t", 10*time.Second, "How long to wait for the result")
	pflag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if pin < 0 {
		Exitf("--pin is required\n")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	results := make(chan relay.WriteResult, 1)
	c, err := client.Dial(ctx, client.Config{
		URL:   url,
		Wrote: func(res relay.WriteResult) { results <- res },
		Err:   func(res relay.WriteResult) { results <- res },
	})
	if err != nil {
		Exitf("Failed to connect: %v\n", err)
	}
	defer c.Close()

	if err := c.Write(ctx, pin, value); err != nil {
		Exitf("Failed to send write: %v\n", err)
	}

	select {
	case res := <-results:
		if !res.OK() {
			Exitf("Pin %d: %s\n", res.Pin, res.Message)
		}
		fmt.Printf("Wrote pin %d = %d\n", res.Pin, res.Value)
	case <-c.Done():
		Exitf("Connection closed: %v\n", c.Err())
	case <-ctx.Done():
		Exitf("No result within %s\n", timeout)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
