package main

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/vaultsync/internal/client"
	"github.com/TheMichaelB/vaultsync/internal/config"
	"github.com/TheMichaelB/vaultsync/internal/events"
)

var (
	cfgFile    string
	jsonOutput bool
	logLevel   string

	cfg    *config.Config
	logger *events.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vaultsync",
	Short: "Encrypted personal vault with file sync",
	Long: `Vaultsync keeps an encrypted collection of personal records in a
local database and synchronizes it with a vault file server. Sensitive
fields are encrypted with a password that never leaves the client.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if logLevel != "" {
			cfg.Log.Level = logLevel
		}

		logger, err = events.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path (default searches .vaultsync/config.json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
}

// newClient builds the client stack. Callers own Close.
func newClient() (*client.Client, error) {
	c, err := client.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	return string(password), nil
}

// resolvePassword prefers the flag, then the VAULTSYNC_PASSWORD
// environment variable, then an interactive prompt.
func resolvePassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("VAULTSYNC_PASSWORD"); env != "" {
		return env, nil
	}
	return promptPassword("Vault password: ")
}

func printSuccess(format string, args ...interface{}) {
	color.Green("✓ "+format, args...)
}

func printError(format string, args ...interface{}) {
	color.Red("✗ "+format, args...)
}

func printInfo(format string, args ...interface{}) {
	color.Cyan(format, args...)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		printError("Failed to marshal JSON: %v", err)
		return
	}
	fmt.Println(string(data))
}
