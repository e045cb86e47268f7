// Package main runs the webpilot control server: a local web UI that starts a
// browser-automation agent and streams its progress and screenshots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/webpilot/pkg/agent"
	"github.com/entrhq/webpilot/pkg/broadcast"
	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/server"
	"github.com/entrhq/webpilot/pkg/supervisor"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	EnvFile     string
	Host        string
	Port        int
	Headless    bool
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("webpilot v%s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cli); err != nil {
		stop()
		log.Printf("webpilot: %v", err)
		os.Exit(1)
	}
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.EnvFile, "env-file", ".env", "Environment file with provider API keys")
	flag.StringVar(&cli.Host, "host", "", "Listen host (overrides config)")
	flag.IntVar(&cli.Port, "port", 0, "Listen port (overrides config)")
	flag.BoolVar(&cli.Headless, "headless", false, "Run the browser without a window")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "webpilot - browser agent control server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: webpilot [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Serve the UI on the default address\n")
		fmt.Fprintf(os.Stderr, "  webpilot\n\n")
		fmt.Fprintf(os.Stderr, "  # Headless browser on another port\n")
		fmt.Fprintf(os.Stderr, "  webpilot -headless -port 8080\n\n")
	}

	flag.Parse()
	return cli
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = cli.Host
		case "port":
			cfg.Server.Port = cli.Port
		case "headless":
			cfg.Browser.Headless = cli.Headless
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func configureLogging(cfg config.LoggingConfig) {
	switch cfg.Verbosity {
	case "quiet":
		logging.Configure(cfg.Dir, nil)
	case "debug":
		logging.Configure(cfg.Dir, os.Stderr)
		logging.SetDebug(true)
	default:
		logging.Configure(cfg.Dir, os.Stderr)
	}
}

func run(ctx context.Context, cli *CLIConfig) error {
	if err := godotenv.Load(cli.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", cli.EnvFile, err)
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	configureLogging(cfg.Logging)

	logger := logging.MustLogger("webpilot")
	defer logger.Close()

	hub := broadcast.NewHub(broadcast.Options{
		QueueSize:   cfg.Stream.QueueSize,
		SendTimeout: cfg.Server.WriteTimeout,
		Logger:      logging.MustLogger("broadcast"),
	})
	defer hub.Close()

	launcher := browser.NewLauncher(browser.LauncherOptions{Install: cfg.Browser.Install, Output: os.Stderr})
	defer func() {
		if err := launcher.Shutdown(); err != nil {
			logger.Warnf("Error stopping browser driver: %v", err)
		}
	}()

	sup, err := supervisor.New(supervisor.Options{
		Broadcaster: hub,
		Launcher:    launcher,
		LaunchOptions: browser.LaunchOptions{
			Headless: cfg.Browser.Headless,
			Viewport: browser.Viewport{Width: cfg.Browser.ViewportWidth, Height: cfg.Browser.ViewportHeight},
			Channel:  cfg.Browser.Channel,
		},
		AgentConfig: agent.Config{
			MaxActionsPerStep: cfg.Agent.MaxActionsPerStep,
			MaxFailures:       cfg.Agent.MaxFailures,
			MaxInputTokens:    cfg.Agent.MaxInputTokens,
			StepTimeout:       cfg.Agent.StepTimeout,
			AllowedDomains:    cfg.Agent.AllowedDomains,
		},
		MaxSteps: cfg.Agent.MaxSteps,
		Logger:   logging.MustLogger("supervisor"),
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	srv, err := server.New(server.Options{
		Config:     cfg,
		Supervisor: sup,
		Hub:        hub,
		Logger:     logging.MustLogger("server"),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Fprintf(os.Stderr, "webpilot v%s listening on http://%s\n", version, cfg.Address())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("Shutting down...")

		// Stop admitting runs, then let an in-flight run finish and close
		// its browser before the observers it is reporting to go away.
		runCtx, cancelRun := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancelRun()
		if err := sup.Shutdown(runCtx); err != nil {
			logger.Warnf("Run did not finish before shutdown: %v", err)
		}

		// The HTTP side gets its own deadline so a slow run cannot use it up.
		httpCtx, cancelHTTP := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancelHTTP()
		return srv.Shutdown(httpCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
