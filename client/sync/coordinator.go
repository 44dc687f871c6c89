// Package sync drains the offline mutation queue against the server when
// connectivity returns.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/santierhq/santier/client/gateway"
	"github.com/santierhq/santier/client/queue"
	"github.com/santierhq/santier/pkg/logger"
)

// FileStore abstracts local photo files so the drain logic can be tested
// without touching the filesystem.
type FileStore interface {
	Read(path string) ([]byte, error)
	Remove(path string) error
}

// OSFileStore is the real filesystem.
type OSFileStore struct{}

func (OSFileStore) Read(path string) ([]byte, error) { return os.ReadFile(path) }
func (OSFileStore) Remove(path string) error         { return os.Remove(path) }

// Result summarizes one drain pass. Synced and DeadLettered are reported to
// the user separately.
type Result struct {
	Synced       int
	DeadLettered int
}

// Config wires a Coordinator.
type Config struct {
	Gateway *gateway.Gateway
	Queue   *queue.Queue
	Files   FileStore
	// Invalidate receives the cache collections touched by successfully
	// synced items after each pass.
	Invalidate func(collections []string)
	// Notify receives the pass summary when at least one item was processed.
	Notify func(Result)
}

// Coordinator serializes queue drains. Items are processed one at a time, in
// enqueue order; a trigger arriving mid-drain is dropped.
type Coordinator struct {
	gw         *gateway.Gateway
	queue      *queue.Queue
	files      FileStore
	invalidate func([]string)
	notify     func(Result)
	log        *zap.Logger

	draining atomic.Bool
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("sync: gateway is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("sync: queue is required")
	}
	files := cfg.Files
	if files == nil {
		files = OSFileStore{}
	}
	return &Coordinator{
		gw:         cfg.Gateway,
		queue:      cfg.Queue,
		files:      files,
		invalidate: cfg.Invalidate,
		notify:     cfg.Notify,
		log:        logger.WithModule("sync"),
	}, nil
}

// Drain processes every retryable queued item sequentially. If a drain is
// already running the call returns immediately with a zero Result and no
// network activity.
func (c *Coordinator) Drain(ctx context.Context) (Result, error) {
	if !c.draining.CompareAndSwap(false, true) {
		return Result{}, nil
	}
	defer c.draining.Store(false)

	items, err := c.queue.Pending(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	var errs error
	collections := make(map[string]struct{})

	for i := range items {
		item := &items[i]

		if err := c.processItem(ctx, item); err != nil {
			if errors.Is(err, gateway.ErrUnauthenticated) {
				// Tokens are gone; nothing later in the pass can succeed.
				errs = multierr.Append(errs, err)
				break
			}

			state, retryErr := c.queue.IncrementRetry(ctx, item.ID)
			if retryErr != nil {
				errs = multierr.Append(errs, retryErr)
				continue
			}
			if state.DeadLettered() {
				result.DeadLettered++
				c.log.Warn("item dead lettered",
					zap.String("id", item.ID),
					zap.String("kind", string(item.Kind)),
					zap.Int("retries", state.Count))
			}
			errs = multierr.Append(errs, err)
			continue
		}

		if err := c.queue.Remove(ctx, item.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		result.Synced++
		if m, err := item.Mutation(); err == nil {
			collections[m.Collection()] = struct{}{}
		}
	}

	if result.Synced > 0 && c.invalidate != nil {
		names := make([]string, 0, len(collections))
		for name := range collections {
			names = append(names, name)
		}
		c.invalidate(names)
	}
	if (result.Synced > 0 || result.DeadLettered > 0) && c.notify != nil {
		c.notify(result)
	}

	return result, errs
}

// processItem replays one queued mutation: photos first, in order, then the
// entity call with the collected attachment ids, then local file cleanup.
// The phases are not atomic; a crash between upload and create leaves remote
// orphans for the server-side sweep to reclaim.
func (c *Coordinator) processItem(ctx context.Context, item *queue.PendingItem) error {
	m, err := item.Mutation()
	if err != nil {
		return err
	}

	refs, err := item.LocalPhotoRefs()
	if err != nil {
		return err
	}

	attachmentIDs := make([]string, 0, len(refs))
	for _, ref := range refs {
		content, err := c.files.Read(ref)
		if err != nil {
			return err
		}

		data, err := c.gw.Upload(ctx, "/api/attachments", filepath.Base(ref), content)
		if err != nil {
			return err
		}

		var uploaded struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &uploaded); err != nil {
			return err
		}
		attachmentIDs = append(attachmentIDs, uploaded.ID)
	}

	if len(attachmentIDs) > 0 {
		m.SetAttachmentRefs(attachmentIDs)
	}

	method, path := m.Endpoint()
	if _, err := c.gw.Call(ctx, method, path, m); err != nil {
		return err
	}

	// Entity is on the server; local photo files are safe to delete now.
	for _, ref := range refs {
		if err := c.files.Remove(ref); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("remove synced photo", zap.String("path", ref), zap.Error(err))
		}
	}

	return nil
}
