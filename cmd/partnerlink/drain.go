package main

import (
	"fmt"

	"github.com/alexjbarnes/partnerlink/internal/config"
	"github.com/alexjbarnes/partnerlink/internal/drain"
	"github.com/alexjbarnes/partnerlink/internal/logging"
	"github.com/alexjbarnes/partnerlink/internal/queue"
	"github.com/spf13/cobra"
)

func newDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Ship one batch of queued records and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			logger := logging.NewLogger(cfg.Environment)

			q, err := queue.Open(cfg.QueuePath)
			if err != nil {
				return fmt.Errorf("opening queue: %w", err)
			}
			defer q.Close()

			uploaders, err := buildUploaders(cfg, logger)
			if err != nil {
				return err
			}

			d := drain.New(q, uploaders, logger, cfg.DrainInterval, cfg.DrainBatch)

			shipped, err := d.DrainOnce(cmd.Context())
			if err != nil {
				return err
			}

			remaining, err := q.Len()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "shipped %d record(s), %d remaining\n", shipped, remaining)

			return nil
		},
	}
}
