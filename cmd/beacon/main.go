package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/dispatch"
)

// Flags holds command-line options
type Flags struct {
	ConfigPath    string
	PropertyID    string
	LogLevel      string
	Addr          string
	FlushSchedule string
	FlushTimeout  time.Duration
}

func main() {
	flags := parseFlags()
	logger := setupLogger(flags.LogLevel)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.App.PropertyID == "" {
		logger.Fatal("A property ID is required (-property or BEACON_PROPERTY_ID)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newClient(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to start client: %v", err)
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	if command == "pipe" {
		err = runPipe(ctx, c, cfg, flags, logger)
	} else {
		err = runOnce(ctx, c, command, args, flags.FlushTimeout)
	}

	if cerr := c.Close(flags.FlushTimeout); cerr != nil {
		logger.WithError(cerr).Warn("Shutdown finished with errors")
	}
	if err != nil {
		logger.Fatal(err)
	}
}

func parseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", os.Getenv("BEACON_CONFIG"), "YAML configuration file (optional)")
	flag.StringVar(&f.PropertyID, "property", "", "Property ID (overrides BEACON_PROPERTY_ID)")
	flag.StringVar(&f.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.Addr, "addr", "", "Listen address for /metrics and /healthz in pipe mode (overrides config)")
	flag.StringVar(&f.FlushSchedule, "flush-schedule", "@every 1m", "Cron schedule for flushing the queue in pipe mode")
	flag.DurationVar(&f.FlushTimeout, "flush-timeout", 30*time.Second, "Maximum time to wait for queued hits to be delivered")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage: beacon [flags] <command> [args]

Commands:
  screenview <name>
  event <category> <action> [label] [value]
  exception <description> [fatal]
  timing <category> <variable> <millis> [label]
  pipe        read one JSON object of hit parameters per line from stdin

Flags:
`)
		flag.PrintDefaults()
	}

	flag.Parse()
	return f
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func loadConfig(flags *Flags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.ConfigPath != "" {
		cfg, err = config.LoadFile(flags.ConfigPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	if flags.PropertyID != "" {
		cfg.App.PropertyID = flags.PropertyID
	}
	if flags.Addr != "" {
		cfg.Server.Addr = flags.Addr
	}
	return cfg, nil
}

// runOnce sends a single hit and waits for it to be delivered.
func runOnce(ctx context.Context, c *client, command string, args []string, timeout time.Duration) error {
	b, err := parseCommand(command, args)
	if err != nil {
		return err
	}

	c.tracker.SendHit(b)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.dispatcher.Flush(ctx); err != nil {
		if errors.Is(err, dispatch.ErrDisabled) {
			return fmt.Errorf("dispatching is disabled, hit not sent: %w", err)
		}
		return fmt.Errorf("failed to deliver hit: %w", err)
	}
	return nil
}
