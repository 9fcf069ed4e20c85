package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncPassword string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the server snapshot into the local vault",
	Long: `Sync replaces the local collection with the server snapshot. The
server copy is authoritative; local items not present on the server are
discarded. When the server is unreachable the local data is kept.`,
	Example: `  vaultsync sync
  vaultsync sync --json`,
	RunE: runSync,
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the local collection to the server now",
	Long: `Push uploads the full local collection as the new server snapshot,
bypassing the debounced background push.`,
	RunE: runPush,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pushCmd)

	syncCmd.Flags().StringVarP(&syncPassword, "password", "p", "",
		"Vault password (will prompt if not provided)")
	pushCmd.Flags().StringVarP(&syncPassword, "password", "p", "",
		"Vault password (will prompt if not provided)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	password, err := resolvePassword(syncPassword)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	sess := c.Login(password)
	result := c.Sync.AutoSync(ctx, sess)

	if jsonOutput {
		printJSON(result)
		if !result.Success {
			return fmt.Errorf("sync failed: %s", result.Error)
		}
		return nil
	}

	if !result.Success {
		printError("Sync failed: %s", result.Error)
		return fmt.Errorf("sync failed: %s", result.Error)
	}

	switch result.Action {
	case "loaded":
		printSuccess("Loaded %d items from server", result.Count)
	default:
		printInfo("Server unavailable, kept %d local items", result.Count)
	}
	return nil
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	password, err := resolvePassword(syncPassword)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	sess := c.Login(password)
	if err := c.Sync.PushNow(ctx, sess); err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{"success": false, "error": err.Error()})
		} else {
			printError("Push failed: %v", err)
		}
		return err
	}

	n, _ := c.Store.Count(ctx)
	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "count": n})
	} else {
		printSuccess("Pushed %d items to server", n)
	}
	return nil
}
