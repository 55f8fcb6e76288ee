package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alexjbarnes/partnerlink/internal/config"
	"github.com/alexjbarnes/partnerlink/internal/queue"
	"github.com/spf13/cobra"
)

func newEnqueueCmd() *cobra.Command {
	var (
		partnerName string
		objectKey   string
		file        string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue an export record for delivery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			payload, err := readPayload(file)
			if err != nil {
				return err
			}

			q, err := queue.Open(cfg.QueuePath)
			if err != nil {
				return fmt.Errorf("opening queue: %w", err)
			}
			defer q.Close()

			seq, err := q.Enqueue(partnerName, objectKey, payload)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queued record %d for partner %s\n", seq, partnerName)

			return nil
		},
	}

	cmd.Flags().StringVar(&partnerName, "partner", "", "target partner name")
	cmd.Flags().StringVar(&objectKey, "key", "", "object key to store the payload under")
	cmd.Flags().StringVar(&file, "file", "-", "payload file, or - for stdin")
	_ = cmd.MarkFlagRequired("partner")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func readPayload(file string) ([]byte, error) {
	if file == "-" {
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}

		return payload, nil
	}

	payload, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading payload file: %w", err)
	}

	return payload, nil
}
