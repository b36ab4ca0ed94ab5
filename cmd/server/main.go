package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gofix/dm-monitor/internal/browser"
	"github.com/gofix/dm-monitor/internal/config"
	"github.com/gofix/dm-monitor/internal/httpapi"
	"github.com/gofix/dm-monitor/internal/notify"
	"github.com/gofix/dm-monitor/internal/scraper"
	"github.com/gofix/dm-monitor/internal/store"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("dm-monitor version %s\n", version)
		os.Exit(0)
	}
	// Set up logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.Info("Starting DM Monitor")

	// Initialize the store
	st, err := store.NewStore(cfg.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize store")
	}
	defer st.Close()

	// The scraper persists through its own HTTP API, not the store directly
	sink := httpapi.NewClient(cfg.BaseURL, logger)

	var notifier scraper.Notifier
	if cfg.NotifyEmail != "" {
		notifier = notify.NewMailer(cfg.SMTP, cfg.FrontendURL, logger)
	}

	factory := func(ctx context.Context) (scraper.DocumentQuery, error) {
		return browser.New(ctx, browser.Options{
			Headless:   cfg.Headless,
			Bin:        cfg.ChromeBin,
			UserAgent:  cfg.UserAgent,
			NavTimeout: cfg.NavTimeout,
		}, logger)
	}

	monitor := scraper.NewMonitor(factory, sink, scraper.MonitorConfig{
		TargetURL:          cfg.TargetURL,
		ConversationMarker: cfg.ConversationMarker,
		CookieName:         cfg.CookieName,
		CookieDomain:       cfg.CookieDomain,
		RecipientUsername:  cfg.RecipientUsername,
		ScanInterval:       cfg.ScanInterval,
		SettleDelay:        cfg.SettleDelay,
		ErrorCooldown:      cfg.ErrorCooldown,
		SelectorTimeout:    cfg.SelectorTimeout,
		ScrollSteps:        cfg.ScrollSteps,
		ScrollStepDelay:    cfg.ScrollStepDelay,
	}, logger)

	controller := scraper.NewController(monitor, st, notifier, cfg.NotifyEmail, scraper.RecoveryConfig{
		InitRetryBackoff:    cfg.InitRetryBackoff,
		MaxInitRetries:      cfg.MaxInitRetries,
		RotateCooldown:      cfg.RotateCooldown,
		CredentialPollDelay: cfg.CredentialPollDelay,
		ResumeDelay:         5 * time.Second,
	}, logger)

	server := httpapi.NewServer(cfg, st, controller, logger)

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Run the API server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(ctx); err != nil {
			errChan <- err
		}
	}()

	token, err := controller.Start(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start monitoring run")
	}

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
	case err := <-errChan:
		logger.WithError(err).Error("Server error")
	}

	cancel()
	if err := controller.Stop(token); err != nil {
		logger.WithError(err).Warn("Failed to stop monitoring run")
	}

	logger.Info("Shutting down DM Monitor")
}
