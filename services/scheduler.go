// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler runs the recurring housekeeping jobs: evicting
// idle sessions and re-reading the latest settled auction from the mirror (a
// safety net in case the sync worker missed a batch).
func StartMaintenanceScheduler(sessions *SessionManager, auctions *AuctionService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 5 minutes: evict sessions idle past the TTL
	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			sessions.Sweep()
		}),
	)

	// Every minute: refresh the latest settled reward context
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			before := auctions.LatestSettledContext()
			auctions.RefreshLatest()
			if after := auctions.LatestSettledContext(); after != before {
				log.Printf("✅ Latest settled auction advanced: %d → %d", before, after)
			}
		}),
	)
}
