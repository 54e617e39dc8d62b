package jobs

import (
	"context"
	"log"
	"time"

	"seshtrack/internal/services"
)

// StaleSeshReaperJob force-closes seshes that were never ended, e.g. the app
// was killed mid-sesh. Keeps the active-sesh query from resurrecting
// week-old sessions.
type StaleSeshReaperJob struct {
	seshes *services.SeshService
	maxAge time.Duration
}

// NewStaleSeshReaperJob creates the reaper closing seshes open longer than maxAge
func NewStaleSeshReaperJob(seshes *services.SeshService, maxAge time.Duration) *StaleSeshReaperJob {
	return &StaleSeshReaperJob{seshes: seshes, maxAge: maxAge}
}

func (j *StaleSeshReaperJob) Name() string { return "stale-sesh-reaper" }

// Run closes every sesh that has been open longer than maxAge
func (j *StaleSeshReaperJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.maxAge)

	closed, err := j.seshes.CloseStale(ctx, cutoff)
	if err != nil {
		return err
	}

	if closed > 0 {
		log.Printf("🧹 [REAPER] Closed %d stale sesh(es) older than %v", closed, j.maxAge)
	}
	return nil
}
