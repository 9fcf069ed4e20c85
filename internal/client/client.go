// Package client wires the client-side components together.
package client

import (
	"context"

	"github.com/TheMichaelB/vaultsync/internal/config"
	"github.com/TheMichaelB/vaultsync/internal/crypto"
	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/models"
	"github.com/TheMichaelB/vaultsync/internal/services/sync"
	"github.com/TheMichaelB/vaultsync/internal/store"
	"github.com/TheMichaelB/vaultsync/internal/transport"
)

// Client provides the high-level API for vault operations.
type Client struct {
	Store store.Store
	Sync  *sync.Coordinator

	config  *config.Config
	logger  *events.Logger
	crypto  crypto.Provider
	gateway transport.Gateway

	session *models.Session
}

// New creates a client from configuration.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	cryptoProvider := crypto.NewProvider()

	itemStore, err := store.NewSQLiteStore(cfg.Storage.DBFile, cryptoProvider, logger)
	if err != nil {
		return nil, err
	}

	gateway := transport.NewHTTPClient(&cfg.API, logger)

	coordinator := sync.NewCoordinator(itemStore, gateway, &sync.Config{
		PushDebounce: cfg.Sync.PushDebounce,
	}, logger)

	return &Client{
		Store:   itemStore,
		Sync:    coordinator,
		config:  cfg,
		logger:  logger,
		crypto:  cryptoProvider,
		gateway: gateway,
	}, nil
}

// Login derives a session from the password and binds it to the sync
// worker. A wrong password is not detectable here; decryption of
// existing records will report it.
func (c *Client) Login(password string) *models.Session {
	sess := models.NewSession(password)
	c.session = sess
	c.Sync.Bind(sess)
	return sess
}

// Session returns the bound session, or nil when not logged in.
func (c *Client) Session() *models.Session {
	return c.session
}

// Notifications subscribes to the server change feed.
func (c *Client) Notifications(ctx context.Context) (<-chan models.ChangeEvent, error) {
	return c.gateway.Notifications(ctx)
}

// Close releases all client resources.
func (c *Client) Close() error {
	c.Sync.Close()
	if err := c.gateway.Close(); err != nil {
		c.logger.WithError(err).Warn("close gateway")
	}
	return c.Store.Close()
}
