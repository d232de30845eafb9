package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/MMOzz/OSTKanBridge/internal/bridge"
	"github.com/MMOzz/OSTKanBridge/internal/events"
	"github.com/MMOzz/OSTKanBridge/internal/export"
	"github.com/MMOzz/OSTKanBridge/internal/kanboard"
	"github.com/MMOzz/OSTKanBridge/internal/osticket"
	"github.com/MMOzz/OSTKanBridge/internal/status"
	"github.com/MMOzz/OSTKanBridge/internal/store"
	"github.com/MMOzz/OSTKanBridge/internal/store/postgres"
	"github.com/MMOzz/OSTKanBridge/internal/store/sqlite"
)

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openStore selects the mapping store backend from the URL scheme.
func openStore(url string) (store.Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.New(url)
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("BRIDGE_DATABASE_URL: sqlite:// needs a path")
		}
		return sqlite.New(path)
	}
	return nil, fmt.Errorf("BRIDGE_DATABASE_URL: unsupported scheme in %q (want postgres:// or sqlite://)", url)
}

// withStore opens the mapping store for the admin commands, which need
// neither osTicket nor Kanboard.
func withStore(fn func(ctx context.Context, s store.Store) error) error {
	s, err := openStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()
	return fn(context.Background(), s)
}

func newPublisher() (events.Publisher, error) {
	if cfg.NATSURL == "" {
		logger.Debug("events disabled (BRIDGE_NATS_URL not set)")
		return &events.NoopPublisher{}, nil
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Info("events enabled", "nats_url", cfg.NATSURL)
	return pub, nil
}

func loadTranslation() (*status.Translation, error) {
	if cfg.StatusMapPath == "" {
		return status.Default(), nil
	}
	return status.Load(cfg.StatusMapPath)
}

func newOSTicket() (*osticket.Client, error) {
	return osticket.Open(osticket.Config{
		DSN:         cfg.OSTDSN,
		TablePrefix: cfg.OSTTablePrefix,
		SyncField:   cfg.OSTSyncField,
		SyncYes:     cfg.OSTSyncYes,
		Timeout:     cfg.HTTPTimeout,
	})
}

func newKanboard() *kanboard.Client {
	return kanboard.New(kanboard.Config{
		URL:           strings.TrimRight(cfg.KanboardURL, "/") + "/jsonrpc.php",
		User:          cfg.KanboardUser,
		Token:         cfg.KanboardToken,
		CommentUserID: cfg.KanboardCommentUserID,
		Timeout:       cfg.HTTPTimeout,
		Rate:          cfg.KanboardRate,
		Burst:         cfg.KanboardBurst,
	})
}

// app is everything a bridge-driving command needs. close releases it in
// reverse order of acquisition.
type app struct {
	store     store.Store
	source    *osticket.Client
	target    *kanboard.Client
	publisher events.Publisher
	bridge    *bridge.Bridge
}

func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			logger.Error("error closing osTicket connection", "err", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}
	}
}

// newApp opens the store, both collaborators and the event publisher and
// builds the bridge over them.
func newApp() (*app, error) {
	if err := cfg.RequireBridge(); err != nil {
		return nil, err
	}
	tr, err := loadTranslation()
	if err != nil {
		return nil, err
	}

	a := &app{}
	if a.store, err = openStore(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if a.source, err = newOSTicket(); err != nil {
		a.close()
		return nil, fmt.Errorf("open osTicket database: %w", err)
	}
	a.target = newKanboard()
	if a.publisher, err = newPublisher(); err != nil {
		a.close()
		return nil, err
	}

	a.bridge, err = bridge.New(bridge.Deps{
		Store:       a.store,
		Source:      a.source,
		Target:      a.target,
		Translation: tr,
		Publisher:   a.publisher,
		Logger:      logger,
	}, bridge.Options{
		DefaultContainer: cfg.KanboardDefaultProject,
		CreateBatch:      cfg.CreateBatch,
		Lookback:         cfg.Lookback,
		SourceBaseURL:    cfg.OSTBaseURL,
		TargetBaseURL:    cfg.KanboardURL,
		TaskField:        cfg.OSTTaskField,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// exportDestinations builds the configured export targets. A destination
// that cannot be constructed is logged and skipped.
func exportDestinations(ctx context.Context) []export.Destination {
	var dests []export.Destination
	if cfg.ExportS3Bucket != "" {
		d, err := export.NewS3Destination(ctx, export.S3Config{
			Bucket:   cfg.ExportS3Bucket,
			Key:      cfg.ExportS3Key,
			Region:   cfg.ExportS3Region,
			Endpoint: cfg.ExportS3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			dests = append(dests, d)
			logger.Info("export destination enabled", "destination", d.String())
		}
	}
	if cfg.ExportGitRepo != "" {
		d := export.NewGitDestination(cfg.ExportGitRepo, cfg.ExportGitFile, cfg.ExportGitBranch)
		dests = append(dests, d)
		logger.Info("export destination enabled", "destination", d.String())
	}
	return dests
}
