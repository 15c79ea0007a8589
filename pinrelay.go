package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"gregoryjjb/pinrelay/gpio"
	"gregoryjjb/pinrelay/relay"
)

func init() {
	InitializeLogger()
}

// Populated by ldflags (ugh)
var (
	version            string
	buildUnixTimestamp string
	commitHash         string
)

func main() {
	ts, _ := strconv.ParseInt(buildUnixTimestamp, 10, 64)
	buildInfo := BuildInfo{
		Version:   version,
		Commit:    commitHash,
		BuildTime: time.Unix(ts, 0),
	}

	var flags Flags
	versionFlag := pflag.Bool("version", false, "Print version")
	systemdFlag := pflag.Bool("systemd", false, "Print systemd service file")
	pflag.StringVarP(&flags.ConfigPath, "config", "c", "", "Path to "+ConfigFileName)
	pflag.StringVar(&flags.Host, "host", "", "Host address the HTTP server will listen on")
	pflag.IntVarP(&flags.Port, "port", "p", 0, "Port the HTTP server will listen on")
	pflag.StringVarP(&flags.Driver, "driver", "d", "", "GPIO driver to use (rpio|periph|simulated)")
	pflag.StringVarP(&flags.Level, "level", "l", "", "Set log level")
	pflag.Parse()

	if *versionFlag {
		fmt.Println("Pinrelay version:", buildInfo.Version)
		fmt.Println("Built on:", buildInfo.BuildTime)
		fmt.Println("Commit hash:", buildInfo.Commit)
		return
	}

	if *systemdFlag {
		SystemdServiceFile()
		return
	}

	log.Info().
		Str("version", buildInfo.Version).
		Str("build_timestamp", buildInfo.BuildTime.Format(time.RFC3339)).
		Str("commit_hash", buildInfo.Commit).
		Msg("Initializing Pinrelay")

	// Initialize Config
	config, err := NewConfig(NewPinrelayOSFS(), flags, os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Config initialization failed")
	}
	SetLogLevel(config.LogLevel)
	if config.Path != "" {
		log.Info().Str("path", config.Path).Msg("Loaded config file")
	}

	// Initialize GPIO
	facility, err := gpio.New(config.Driver)
	if err != nil {
		log.Fatal().Err(err).Str("driver", config.Driver).Msg("GPIO initialization failed")
	}

	if err := Run(config, buildInfo, facility, os.Interrupt, syscall.SIGTERM); err != nil {
		log.Fatal().Err(err).Msg("Server closed with error")
	}
	log.Info().Msg("Pinrelay stopped")
}

// run serves until an interrupt arrives or the server fails. It only
// returns after every claimed pin has been released.
// Run serves until one of signals arrives, then returns once the relay has
// released every pin.
func Run(config *Config, buildInfo BuildInfo, facility gpio.Facility, signals ...os.Signal) error {
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	rl := relay.New(ctx, facility, relay.Options{
		AllowedPins: config.AllowedPins,
		HistorySize: config.HistorySize,
	})

	g.Go(func() error {
		return StartServer(ctx, config, buildInfo, rl)
	})
	g.Go(func() error {
		<-rl.Done()
		return nil
	})

	return g.Wait()
}
