package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultsync/internal/transport"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the server's change feed",
	Long: `Watch subscribes to the server's websocket notification feed and
prints an event whenever the snapshot or the file set changes. Useful to
see pushes from other clients land in real time.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := transport.NewHTTPClient(&cfg.API, logger)
	defer gw.Close()

	events, err := gw.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to change feed: %w", err)
	}

	printInfo("Watching %s (Ctrl-C to stop)", cfg.API.BaseURL)
	for ev := range events {
		if jsonOutput {
			printJSON(ev)
			continue
		}
		fmt.Printf("%s  %s\n", ev.Timestamp.Format("15:04:05"), ev.Event)
	}

	return nil
}
