package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"courierchat/internal/auth"
	"courierchat/internal/backend"
	"courierchat/internal/chat"
	"courierchat/internal/config"
	"courierchat/internal/constants"
	"courierchat/internal/database"
	"courierchat/internal/media"
	"courierchat/internal/realtime"
	"courierchat/internal/retry"
	"courierchat/internal/tracing"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes message content)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("CourierChat %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting CourierChat")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - message content will be logged")
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Open the local cache with exponential backoff; a locked file from a
	// previous instance resolves within a few attempts.
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize cache database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache database after retries: %w", err)
	}
	defer func() { _ = db.Close() }()

	guard, err := auth.NewGuard(cfg.Auth.Secret)
	if err != nil {
		return fmt.Errorf("failed to initialize auth guard: %w", err)
	}

	backendClient := backend.NewClient(cfg.Backend, cfg.Auth.Token)
	uploader := media.NewUploader(cfg.Media, cfg.Auth.Token)

	// One session per configured conversation, each with its own feed
	// subscription.
	sessions := make(map[string]*chat.Session, len(cfg.Conversations))
	defer func() {
		for peer, session := range sessions {
			if err := session.Close(); err != nil {
				logger.WithError(err).WithField("peer", peer).Warn("Failed to close session")
			}
		}
	}()

	for _, conv := range cfg.Conversations {
		parts := strings.SplitN(conv, ":", 2)
		peerID := parts[1]

		feed := realtime.NewClient(cfg.Realtime, cfg.Auth.Token, logger)
		session, err := chat.NewSession(chat.SessionOptions{
			Backend:          backendClient,
			Feed:             feed,
			Uploader:         uploader,
			Cache:            db,
			Verifier:         guard,
			Token:            cfg.Auth.Token,
			PeerID:           peerID,
			TypingIdle:       time.Duration(cfg.Typing.IdleMs) * time.Millisecond,
			PeerTypingExpiry: time.Duration(cfg.Typing.PeerExpiryMs) * time.Millisecond,
			PollInterval:     time.Duration(cfg.Realtime.PollFallbackSec) * time.Second,
			Logger:           logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create session for %s: %w", conv, err)
		}
		if err := session.Start(ctx); err != nil {
			return fmt.Errorf("failed to start session for %s: %w", conv, err)
		}
		sessions[peerID] = session
		logger.WithField("peer", peerID).Info("Conversation session started")
	}

	scheduler := chat.NewRetentionScheduler(db, cfg.RetentionDays,
		time.Duration(constants.DefaultCleanupIntervalHours)*time.Hour, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := NewServer(sessions, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
