package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is a unit of periodic background work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs registered jobs on fixed intervals via gocron
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates an idle scheduler
func NewScheduler() (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{scheduler: scheduler}, nil
}

// Register adds a job running every interval
func (s *Scheduler) Register(job Job, interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			if err := job.Run(context.Background()); err != nil {
				log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", job.Name(), err)
				return
			}
			log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", job.Name(), time.Since(start))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.Name(), err)
	}

	log.Printf("⏰ [SCHEDULER] Registered job '%s' every %v", job.Name(), interval)
	return nil
}

// Start begins running all registered jobs
func (s *Scheduler) Start() {
	s.scheduler.Start()
	log.Println("🚀 [SCHEDULER] Job scheduler started")
}

// Stop gracefully stops all jobs
func (s *Scheduler) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️ [SCHEDULER] Shutdown error: %v", err)
	}
	log.Println("🛑 [SCHEDULER] Job scheduler stopped")
}
