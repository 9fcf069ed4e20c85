package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/vaultsync/internal/models"
)

var (
	itemPassword string

	addName     string
	addCategory string
	addUsername string
	addSecret   string
	addURL      string
	addNotes    string

	listCategory string
	listSearch   string
	listReveal   bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an item to the vault",
	Example: `  vaultsync add --name "Mail account" --username me@example.com
  vaultsync add --name "Home wifi" --category note --notes "WPA2 key in drawer"`,
	RunE: runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List vault items",
	Example: `  vaultsync list
  vaultsync list --category password-entry --search mail`,
	RunE: runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a vault item",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)

	for _, cmd := range []*cobra.Command{addCmd, listCmd, deleteCmd} {
		cmd.Flags().StringVarP(&itemPassword, "password", "p", "",
			"Vault password (will prompt if not provided)")
	}

	addCmd.Flags().StringVar(&addName, "name", "", "Item name (required)")
	addCmd.Flags().StringVar(&addCategory, "category", "password-entry",
		"Category (password-entry, note, link, file)")
	addCmd.Flags().StringVar(&addUsername, "username", "", "Username")
	addCmd.Flags().StringVar(&addSecret, "secret", "", "Stored password or secret")
	addCmd.Flags().StringVar(&addURL, "url", "", "Associated URL")
	addCmd.Flags().StringVar(&addNotes, "notes", "", "Free-form notes")
	_ = addCmd.MarkFlagRequired("name")

	listCmd.Flags().StringVar(&listCategory, "category", "", "Filter by category")
	listCmd.Flags().StringVar(&listSearch, "search", "", "Filter by search text")
	listCmd.Flags().BoolVar(&listReveal, "reveal", false, "Show decrypted secrets")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	password, err := resolvePassword(itemPassword)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	sess := c.Login(password)
	item := &models.VaultItem{
		Name:     addName,
		Category: models.Category(addCategory),
		Username: addUsername,
		Password: addSecret,
		URL:      addURL,
		Notes:    addNotes,
	}

	id, err := c.Store.Add(ctx, sess, item)
	if err != nil {
		printError("Add failed: %v", err)
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "id": id})
	} else {
		printSuccess("Added item %d: %s", id, addName)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	password, err := resolvePassword(itemPassword)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	sess := c.Login(password)

	var items []models.VaultItem
	switch {
	case listSearch != "":
		items, err = c.Store.Search(ctx, sess, listSearch)
	case listCategory != "":
		items, err = c.Store.GetByCategory(ctx, sess, models.Category(listCategory))
	default:
		items, err = c.Store.GetAll(ctx, sess)
	}
	if err != nil {
		printError("List failed: %v", err)
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"items": items, "count": len(items)})
		return nil
	}

	if len(items) == 0 {
		printInfo("No items")
		return nil
	}

	for _, item := range items {
		line := fmt.Sprintf("%4d  %-12s  %s", item.ID, item.Category, item.Name)
		if item.Username != "" {
			line += "  (" + item.Username + ")"
		}
		if listReveal && item.Password != "" {
			line += "  " + item.Password
		}
		if len(item.EncryptedFields) > 0 {
			line += "  [locked: " + strconv.Itoa(len(item.EncryptedFields)) + " fields]"
		}
		fmt.Println(line)
	}
	printInfo("%d items", len(items))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid item id %q", args[0])
	}

	password, err := resolvePassword(itemPassword)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	sess := c.Login(password)
	if err := c.Store.Delete(ctx, sess, id); err != nil {
		printError("Delete failed: %v", err)
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "id": id})
	} else {
		printSuccess("Deleted item %d", id)
	}
	return nil
}
