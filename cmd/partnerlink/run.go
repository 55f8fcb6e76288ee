package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/partnerlink/internal/config"
	"github.com/alexjbarnes/partnerlink/internal/drain"
	"github.com/alexjbarnes/partnerlink/internal/logging"
	"github.com/alexjbarnes/partnerlink/internal/partner"
	"github.com/alexjbarnes/partnerlink/internal/queue"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the drain daemon until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

func runDaemon(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("partnerlink starting",
		slog.String("version", Version),
		slog.Bool("auth_bypass", cfg.AuthBypass),
		slog.String("partners_file", cfg.PartnersFile),
	)

	q, err := queue.Open(cfg.QueuePath)
	if err != nil {
		return fmt.Errorf("opening queue: %w", err)
	}
	defer q.Close()

	// The daemon runs in generations: one set of partner clients plus
	// a file watcher. A partners-file change cancels the generation
	// and starts the next one with fresh clients.
	for {
		err := runGeneration(ctx, cfg, q, logger)
		if errors.Is(err, errReload) {
			logger.Info("partners file changed, rebuilding clients")

			continue
		}

		if ctx.Err() != nil {
			logger.Info("partnerlink stopped")

			return nil
		}

		return err
	}
}

// errReload signals that the current generation ended because the
// partners file changed, not because of a failure.
var errReload = errors.New("partners configuration changed")

func runGeneration(ctx context.Context, cfg *config.Config, q *queue.Queue, logger *slog.Logger) error {
	uploaders, err := buildUploaders(cfg, logger)
	if err != nil {
		return err
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(genCtx)

	drainer := drain.New(q, uploaders, logger, cfg.DrainInterval, cfg.DrainBatch)

	g.Go(func() error {
		return drainer.Run(gctx)
	})

	g.Go(func() error {
		return config.WatchPartners(gctx, cfg.PartnersFile, func() {
			cancel()
		})
	})

	err = g.Wait()

	// Cancellation from within the generation (watcher fired) while
	// the process itself keeps running means reload.
	if ctx.Err() == nil && errors.Is(err, context.Canceled) {
		return errReload
	}

	return err
}

func buildUploaders(cfg *config.Config, logger *slog.Logger) (map[string]drain.Uploader, error) {
	partners, err := config.LoadPartners(cfg.PartnersFile)
	if err != nil {
		return nil, fmt.Errorf("loading partners: %w", err)
	}

	bypass := func() bool { return cfg.AuthBypass }

	uploaders := make(map[string]drain.Uploader, len(partners))

	for _, p := range partners {
		client, err := partner.NewClient(p, bypass)
		if err != nil {
			return nil, fmt.Errorf("building client for partner %s: %w", p.Name, err)
		}

		uploaders[p.Name] = client

		logger.Debug("configured partner",
			slog.String("name", p.Name),
			slog.String("scheme", p.Scheme),
			slog.Bool("mock", p.Mock),
		)
	}

	return uploaders, nil
}
