package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultsync/internal/crypto"
	"github.com/TheMichaelB/vaultsync/internal/server"
	"github.com/TheMichaelB/vaultsync/internal/storage"
	"github.com/TheMichaelB/vaultsync/internal/vaultfile"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vault file server",
	Long: `Serve runs the HTTP server that stores encrypted item snapshots
and file artifacts. All artifacts are encrypted at rest with the vault
password supplied by clients on each request.`,
	Example: `  vaultsync serve
  vaultsync serve --addr :9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	blobs, err := buildBlobStore(ctx)
	if err != nil {
		return err
	}

	vault := vaultfile.NewService(blobs, crypto.NewProvider(), vaultfile.Config{
		MaxUploadSize: cfg.Server.MaxUploadSize,
		MaxConcurrent: cfg.Server.MaxConcurrent,
		RetryAttempts: cfg.Server.RetryAttempts,
		RetryDelay:    cfg.Server.RetryDelay,
		MaxBackups:    cfg.Server.MaxBackups,
	}, logger)

	srv := server.New(vault, cfg.Server.MaxUploadSize, logger)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	printInfo("Vault server listening on %s (backend: %s)", addr, cfg.Server.Backend)
	return srv.Run(ctx, addr)
}

func buildBlobStore(ctx context.Context) (storage.BlobStore, error) {
	switch cfg.Server.Backend {
	case "s3":
		return storage.NewS3Store(ctx, cfg.Server.S3Bucket, cfg.Server.S3Prefix, logger)
	default:
		return storage.NewDiskStore(cfg.Server.DataDir, logger)
	}
}
