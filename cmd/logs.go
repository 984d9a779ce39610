package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/bulkmail/internal/deliverylog"
	"github.com/teemow/bulkmail/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the delivery log",
		Long: `Print the delivery log, oldest entry first.

Only the delivery log settings are needed; the Google client settings may
be absent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts, err := cfg.DeliveryLogOptions()
			if err != nil {
				return err
			}
			sink, closeSink, err := deliverylog.Open(opts)
			if err != nil {
				return fmt.Errorf("failed to open delivery log: %w", err)
			}
			defer func() {
				if err := closeSink(); err != nil {
					logger.Warn("failed to close delivery log", logging.Err(err))
				}
			}()

			lines, err := sink.Lines(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read delivery log: %w", err)
			}
			for _, l := range tailLines(lines, tail) {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Only print the last n entries")
	return cmd
}

func tailLines(lines []string, n int) []string {
	if n > 0 && len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}
