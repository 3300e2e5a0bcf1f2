package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/logging"
)

// Replayer re-dispatches pending webhook rows left behind by a crash between
// store and dispatch. It is safe to run in every process: each batch claims
// its rows with SKIP LOCKED inside one transaction and holds those locks
// until the batch commits, so two replayers never work the same row.
type Replayer struct {
	db       *sql.DB
	ingestor *Ingestor
	interval time.Duration
	// olderThan keeps the replayer off rows the inline path is still working on.
	olderThan int
	batchSize int
}

func NewReplayer(db *sql.DB, ingestor *Ingestor, interval time.Duration) *Replayer {
	return &Replayer{
		db:        db,
		ingestor:  ingestor,
		interval:  interval,
		olderThan: 60,
		batchSize: 50,
	}
}

// Start blocks until ctx is cancelled, polling on the configured interval.
func (r *Replayer) Start(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("webhook replayer started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("webhook replayer stopped")
			return
		case <-ticker.C:
			if err := r.replayBatch(ctx); err != nil {
				log.Error("webhook replay batch failed", "error", err)
			}
		}
	}
}

func (r *Replayer) replayBatch(ctx context.Context) error {
	log := logging.FromContext(ctx)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replayBatch: %w", err)
	}
	defer tx.Rollback()

	hooks, err := r.ingestor.hooks.ClaimStalePending(ctx, tx, r.olderThan, r.batchSize)
	if err != nil {
		return fmt.Errorf("replayBatch: %w", err)
	}

	for i := range hooks {
		hook := &hooks[i]
		if err := r.replay(ctx, hook); err != nil {
			log.Warn("webhook replay failed",
				"webhook_id", hook.ID,
				"provider", hook.Provider,
				"event", hook.Event,
				"error", err,
			)
			if markErr := r.ingestor.hooks.MarkFailedTx(ctx, tx, hook.ID, err.Error()); markErr != nil {
				return fmt.Errorf("replayBatch: mark failed: %w", markErr)
			}
			continue
		}
		if err := r.ingestor.hooks.MarkProcessedTx(ctx, tx, hook.ID); err != nil {
			return fmt.Errorf("replayBatch: mark processed: %w", err)
		}
		log.Info("webhook replayed", "webhook_id", hook.ID, "event", hook.Event)
	}

	// Rolling back on a commit failure leaves the rows pending; the next
	// batch redoes them, and downstream effects are idempotent.
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replayBatch: commit: %w", err)
	}
	return nil
}

func (r *Replayer) replay(ctx context.Context, hook *domain.PaymentWebhook) error {
	var env envelope
	if err := json.Unmarshal(hook.Payload, &env); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	return r.ingestor.dispatch(ctx, hook.Provider, env)
}
