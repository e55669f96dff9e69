package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/stockcrew/internal/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Analyse the configured watchlist on a cron schedule",
	Long:  `Runs every ticker in watch.tickers on watch.schedule until interrupted. Each ticker is an independent run; at most watch.concurrency run at once.`,
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var watchOnce bool

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Run a single tick immediately and exit")
}

func runWatch(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	watcher, err := application.NewWatcher()
	if err != nil {
		return err
	}

	if watchOnce {
		err := watcher.RunOnce(cmd.Context())
		if tick := watcher.LastTick(); tick != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Analysed %d ticker(s) in %s, %d failed\n", tick.Tickers, tick.Duration.Round(time.Millisecond), len(tick.Failed))
		}
		return err
	}

	logger.Info().Msg("Watching - Press Ctrl+C to stop")
	return watcher.Run(cmd.Context())
}
