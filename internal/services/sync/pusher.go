package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/models"
	"github.com/TheMichaelB/vaultsync/internal/store"
	"github.com/TheMichaelB/vaultsync/internal/transport"
)

// pusher uploads the full decrypted collection to the server. Pushes are
// debounced and single-flight: a burst of mutations produces one upload,
// and a schedule arriving mid-push queues exactly one follow-up.
type pusher struct {
	store    store.Store
	gateway  transport.Gateway
	debounce time.Duration
	logger   *events.Logger

	mu   gosync.Mutex
	sess *models.Session

	trigger chan struct{}
	done    chan struct{}
	once    gosync.Once
	wg      gosync.WaitGroup
}

func newPusher(st store.Store, gateway transport.Gateway, debounce time.Duration, logger *events.Logger) *pusher {
	p := &pusher{
		store:    st,
		gateway:  gateway,
		debounce: debounce,
		logger:   logger.WithField("worker", "pusher"),
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Bind sets the session used for background pushes.
func (p *pusher) Bind(sess *models.Session) {
	p.mu.Lock()
	p.sess = sess
	p.mu.Unlock()
}

func (p *pusher) session() *models.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess
}

// Schedule requests a push. The buffered trigger means a schedule
// arriving while one is already pending is a no-op.
func (p *pusher) Schedule() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Close stops the worker and waits for an in-flight push to finish.
func (p *pusher) Close() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *pusher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.trigger:
		}

		// Debounce window: later schedules fold into this push because
		// the trigger slot refills while we sleep.
		select {
		case <-p.done:
			return
		case <-time.After(p.debounce):
		}

		sess := p.session()
		if !sess.Active() {
			p.logger.Debug("push skipped, no session bound")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		if err := p.push(ctx, sess); err != nil {
			p.logger.WithError(err).Warn("background push failed")
		}
		cancel()
	}
}

// push uploads the full decrypted collection as one snapshot overwrite.
// On failure every record is marked with an error status; the data
// itself is never rolled back.
func (p *pusher) push(ctx context.Context, sess *models.Session) error {
	if !sess.Active() {
		return models.ErrNoCredentials
	}

	items, err := p.store.GetAll(ctx, sess)
	if err != nil {
		return fmt.Errorf("read collection: %w", err)
	}

	receipt, err := p.gateway.SaveItems(ctx, sess, items)
	if err != nil {
		if merr := p.store.MarkSyncStatus(ctx, models.SyncStatusError); merr != nil {
			p.logger.WithError(merr).Warn("mark error status")
		}
		return fmt.Errorf("push snapshot: %w", err)
	}

	if err := p.store.MarkSyncStatus(ctx, models.SyncStatusSynced); err != nil {
		p.logger.WithError(err).Warn("mark synced status")
	}

	p.logger.WithFields(map[string]interface{}{
		"count":    receipt.ItemCount,
		"verified": receipt.Verified,
	}).Debug("snapshot pushed")
	return nil
}
