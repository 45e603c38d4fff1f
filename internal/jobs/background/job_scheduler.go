package background

import (
	"context"
	"log"
	"time"

	"meterbill/internal/caching"
	"meterbill/internal/models"
	"meterbill/internal/services"

	"github.com/go-co-op/gocron/v2"
)

// JobScheduler manages background sweeps. Both jobs are optimizations: lazy
// expiry and counter-key TTLs already keep the system correct without them.
type JobScheduler struct {
	scheduler gocron.Scheduler
	quotaSvc  services.QuotaService
	cacheSvc  caching.CacheService
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(quotaSvc services.QuotaService, cacheSvc caching.CacheService) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler: scheduler,
		quotaSvc:  quotaSvc,
		cacheSvc:  cacheSvc,
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	if _, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.sweepExpiredSubscriptions),
		gocron.WithName("subscription-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		log.Printf("Failed to create subscription sweep job: %v", err)
	}

	if _, err := js.scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(js.pruneStaleUsageCounters),
		gocron.WithName("usage-counter-prune"),
	); err != nil {
		log.Printf("Failed to create usage prune job: %v", err)
	}
}

// sweepExpiredSubscriptions persists free-tier demotion for lapsed
// subscriptions so reads stop paying the lazy-expiry comparison.
func (js *JobScheduler) sweepExpiredSubscriptions() {
	swept, err := js.quotaSvc.SweepExpired(context.Background())
	if err != nil {
		log.Printf("Subscription expiry sweep failed: %v", err)
		return
	}
	if swept > 0 {
		log.Printf("Deactivated %d expired subscriptions", swept)
	}
}

// pruneStaleUsageCounters removes counter keys from past day buckets.
func (js *JobScheduler) pruneStaleUsageCounters() {
	pruned, err := js.cacheSvc.PruneStaleUsage(context.Background(), models.DayBucket(time.Now()))
	if err != nil {
		log.Printf("Usage counter prune failed: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("Pruned %d stale usage counters", pruned)
	}
}
