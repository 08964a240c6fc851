// workers/payout_retry_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"link-auction-claims/services"
)

const maxPayoutAttempts = 5

// PayoutRetryWorker drains the delayed retry queue: submitted payouts that
// failed to confirm get their status re-checked with a doubling delay, up to a
// bounded attempt count.
type PayoutRetryWorker struct {
	queue    services.RetryQueue
	payout   *services.PayoutClient
	interval time.Duration
}

func NewPayoutRetryWorker(queue services.RetryQueue, payout *services.PayoutClient) *PayoutRetryWorker {
	return &PayoutRetryWorker{
		queue:    queue,
		payout:   payout,
		interval: 30 * time.Second,
	}
}

func (w *PayoutRetryWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Payout Retry Worker (retry queue → payout executor)…")
	go w.run(ctx)
}

func (w *PayoutRetryWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.drainDue(ctx); err != nil {
				log.Printf("❌ Payout retry batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Payout Retry Worker stopped")
			return
		}
	}
}

func (w *PayoutRetryWorker) drainDue(ctx context.Context) error {
	entries, err := w.queue.PopDue(ctx, time.Now(), 20)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		w.process(ctx, entry)
	}
	return nil
}

func (w *PayoutRetryWorker) process(ctx context.Context, entry services.PayoutRetry) {
	// Only submitted payouts belong here: claiming never enqueues without a
	// transaction reference, and re-submitting one would bypass the ledger.
	if entry.TxHash == "" {
		log.Printf("🚫 Dropping payout retry with no transaction reference (context=%d kind=%s)", entry.RewardContext, entry.RewardKind)
		return
	}

	confirmed, err := w.payout.CheckConfirmation(ctx, entry.TxHash)
	if err == nil && confirmed {
		log.Printf("✅ Payout %s confirmed on retry (context=%d kind=%s)", entry.TxHash, entry.RewardContext, entry.RewardKind)
		return
	}

	entry.Attempts++
	if entry.Attempts >= maxPayoutAttempts {
		log.Printf("🛑 Dropping payout retry after %d attempts (context=%d kind=%s wallet=%s)",
			entry.Attempts, entry.RewardContext, entry.RewardKind, entry.WalletAddress)
		return
	}

	delay := time.Minute * time.Duration(1<<entry.Attempts)
	if err := w.queue.Enqueue(ctx, entry, delay); err != nil {
		log.Printf("❌ Failed to re-enqueue payout retry: %v", err)
	}
}
