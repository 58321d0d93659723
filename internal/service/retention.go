package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chirino/chat-store/internal/monitoring"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

const defaultRetentionBatchSize = 500

// SweepResult counts what one sweep removed.
type SweepResult struct {
	Conversations int64 `json:"conversations"`
	Messages      int64 `json:"messages"`
	Batches       int   `json:"batches"`
}

// RetentionSweeper hard-deletes unpinned conversations that have not been
// updated within the retention window.
type RetentionSweeper struct {
	store     registrystore.RetentionStore
	days      int
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewRetentionSweeper creates a sweeper. A nil store yields a sweeper whose
// sweeps delete nothing.
func NewRetentionSweeper(store registrystore.RetentionStore, days int, interval time.Duration, batchSize int) *RetentionSweeper {
	if batchSize <= 0 {
		batchSize = defaultRetentionBatchSize
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionSweeper{
		store:     store,
		days:      days,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Start runs a sweep every interval until ctx is cancelled.
func (r *RetentionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx, r.days)
		}
	}
}

// Sweep deletes conversations last updated more than days ago, in batches,
// until a batch comes back short. Failures are logged and end the sweep
// early; they are never returned.
func (r *RetentionSweeper) Sweep(ctx context.Context, days int) SweepResult {
	var result SweepResult
	if r.store == nil || days <= 0 {
		return result
	}
	cutoff := r.now().Add(-time.Duration(days) * 24 * time.Hour)

	for ctx.Err() == nil {
		ids, err := r.store.FindExpiredConversationIDs(ctx, cutoff, r.batchSize)
		if err != nil {
			r.logFailure("find expired conversations", err)
			break
		}
		if len(ids) == 0 {
			break
		}
		messages, conversations, err := r.store.DeleteConversationsHard(ctx, ids)
		if err != nil {
			r.logFailure("hard delete", err)
			break
		}
		result.Batches++
		result.Messages += messages
		result.Conversations += conversations
		monitoring.RecordRetentionDeleted("messages", messages)
		monitoring.RecordRetentionDeleted("conversations", conversations)
		if len(ids) < r.batchSize || conversations == 0 {
			break
		}
	}

	if result.Conversations > 0 {
		log.Info("Retention: completed", "conversations", result.Conversations, "messages", result.Messages, "cutoff", cutoff)
	}
	return result
}

func (r *RetentionSweeper) logFailure(step string, err error) {
	if registrystore.IsUnavailable(err) {
		log.Warn("Retention: store unavailable, skipping sweep", "step", step, "err", err)
		return
	}
	log.Error("Retention: sweep failed", "step", step, "err", err)
}
