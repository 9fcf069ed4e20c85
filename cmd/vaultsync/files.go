package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultsync/internal/models"
	"github.com/TheMichaelB/vaultsync/internal/transport"
)

var (
	filesPassword    string
	uploadCategory   string
	uploadDesc       string
	downloadOutPath  string
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage files stored on the vault server",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List server files",
	RunE:  runFilesList,
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a file to the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesUpload,
}

var filesDownloadCmd = &cobra.Command{
	Use:   "download <file-id>",
	Short: "Download a file from the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesDownload,
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <file-id>",
	Short: "Delete a file from the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesDelete,
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(filesListCmd, filesUploadCmd, filesDownloadCmd, filesDeleteCmd)

	filesCmd.PersistentFlags().StringVarP(&filesPassword, "password", "p", "",
		"Vault password (will prompt if not provided)")
	filesUploadCmd.Flags().StringVar(&uploadCategory, "category", "file",
		"File category")
	filesUploadCmd.Flags().StringVar(&uploadDesc, "description", "",
		"File description")
	filesDownloadCmd.Flags().StringVarP(&downloadOutPath, "output", "o", "",
		"Output path (default: file name from metadata)")
}

// newGateway builds a gateway without the local store; file commands
// talk to the server directly.
func newGateway() (transport.Gateway, *models.Session, error) {
	password, err := resolvePassword(filesPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("read password: %w", err)
	}
	gw := transport.NewHTTPClient(&cfg.API, logger)
	return gw, models.NewSession(password), nil
}

func runFilesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	gw, sess, err := newGateway()
	if err != nil {
		return err
	}
	defer gw.Close()

	listing, err := gw.ListFiles(ctx, sess)
	if err != nil {
		printError("List failed: %v", err)
		return err
	}

	if jsonOutput {
		printJSON(listing)
		return nil
	}

	for _, f := range listing.Files {
		fmt.Printf("%s  %-30s  %8d  %s\n", f.FileID, f.Name, f.Size, f.MimeType)
	}
	printInfo("%d files", listing.TotalCount)
	for _, e := range listing.Errors {
		printError("%s", e)
	}
	return nil
}

func runFilesUpload(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	gw, sess, err := newGateway()
	if err != nil {
		return err
	}
	defer gw.Close()

	name := filepath.Base(args[0])
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	result, err := gw.UploadFile(ctx, sess, transport.FileUpload{
		Name:        name,
		MimeType:    mimeType,
		Description: uploadDesc,
		Category:    uploadCategory,
		Data:        data,
	})
	if err != nil {
		printError("Upload failed: %v", err)
		return err
	}

	if jsonOutput {
		printJSON(result)
	} else {
		printSuccess("Uploaded %s (%d bytes) as %s", result.Name, result.Size, result.FileID)
	}
	return nil
}

func runFilesDownload(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	gw, sess, err := newGateway()
	if err != nil {
		return err
	}
	defer gw.Close()

	meta, err := gw.FileMetadata(ctx, sess, args[0])
	if err != nil {
		printError("Metadata lookup failed: %v", err)
		return err
	}

	data, err := gw.DownloadFile(ctx, sess, args[0])
	if err != nil {
		printError("Download failed: %v", err)
		return err
	}

	out := downloadOutPath
	if out == "" {
		out = meta.Name
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "path": out, "size": len(data)})
	} else {
		printSuccess("Downloaded %s to %s (%d bytes)", meta.Name, out, len(data))
	}
	return nil
}

func runFilesDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	gw, sess, err := newGateway()
	if err != nil {
		return err
	}
	defer gw.Close()

	if err := gw.DeleteFile(ctx, sess, args[0]); err != nil {
		printError("Delete failed: %v", err)
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "file_id": args[0]})
	} else {
		printSuccess("Deleted file %s", args[0])
	}
	return nil
}
