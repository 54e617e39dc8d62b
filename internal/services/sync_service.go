package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"seshtrack/internal/geo"
	"seshtrack/internal/models"
	"seshtrack/internal/notify"
)

// QueueStore is the local offline-queue boundary the sync engine and
// lifecycle controller drain and fill. Implemented by queue.Store.
type QueueStore interface {
	Enqueue(sesh models.Sesh) (models.Sesh, error)
	List() ([]models.Sesh, error)
	Update(id string, update models.SeshUpdate) error
	Remove(id string) error
}

// SyncService drains the offline queue into the remote store. Every queued
// sesh is attempted concurrently and settles on its own; the aggregate
// counts are tallied only after all outcomes are known.
type SyncService struct {
	queue    QueueStore
	remote   RemoteStore
	geocoder geo.Geocoder
	notifier notify.Notifier
	metrics  *Metrics

	inFlight atomic.Bool
}

// NewSyncService creates a sync engine over the given collaborators.
// geocoder and metrics may be nil; notifier may be nil to drop notices.
func NewSyncService(queue QueueStore, remote RemoteStore, geocoder geo.Geocoder, notifier notify.Notifier, metrics *Metrics) *SyncService {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &SyncService{
		queue:    queue,
		remote:   remote,
		geocoder: geocoder,
		notifier: notifier,
		metrics:  metrics,
	}
}

// SyncAll uploads every queued sesh for the given owner. A queued sesh is
// removed from the queue only after its remote create is confirmed; failures
// leave the local record untouched for the next run. Concurrent invocations
// are refused with ErrSyncInFlight so reconnect, foreground, and manual
// triggers cannot double-submit the same item.
func (s *SyncService) SyncAll(ctx context.Context, userID, profileID string) (models.SyncResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return models.SyncResult{}, ErrSyncInFlight
	}
	defer s.inFlight.Store(false)

	queued, err := s.queue.List()
	if err != nil {
		return models.SyncResult{}, err
	}

	if s.metrics != nil {
		s.metrics.QueueDepth.Set(float64(len(queued)))
	}

	// Fast path: nothing pending, no remote calls
	if len(queued) == 0 {
		return models.SyncResult{}, nil
	}

	s.notifier.Notify(fmt.Sprintf("Syncing %d offline poop sesh(es)...", len(queued)))
	log.Printf("🔄 [SYNC] Draining %d queued sesh(es) for user %s", len(queued), userID)

	// Settle all, then tally: one goroutine per item, outcomes recorded
	// independently, never short-circuited on the first failure.
	outcomes := make([]bool, len(queued))
	var wg sync.WaitGroup

	for i, sesh := range queued {
		wg.Add(1)
		go func(i int, sesh models.Sesh) {
			defer wg.Done()
			outcomes[i] = s.syncOne(ctx, sesh, userID, profileID)
		}(i, sesh)
	}
	wg.Wait()

	var result models.SyncResult
	for _, ok := range outcomes {
		if ok {
			result.Synced++
		} else {
			result.Failed++
		}
	}

	if s.metrics != nil {
		s.metrics.SyncRuns.Inc()
		s.metrics.SyncOutcomes.WithLabelValues("synced").Add(float64(result.Synced))
		s.metrics.SyncOutcomes.WithLabelValues("failed").Add(float64(result.Failed))
		s.metrics.QueueDepth.Set(float64(result.Failed))
	}

	if result.Synced > 0 || result.Failed > 0 {
		s.notifier.Notify(fmt.Sprintf("Synced %d poop sesh(es), %d failed", result.Synced, result.Failed))
	}
	log.Printf("✅ [SYNC] Done: %d synced, %d failed", result.Synced, result.Failed)

	return result, nil
}

// syncOne uploads a single queued sesh and reports whether it succeeded.
// Per-item failures are logged, never propagated; the rest of the batch
// must not be affected.
func (s *SyncService) syncOne(ctx context.Context, sesh models.Sesh, userID, profileID string) bool {
	localID := sesh.ID

	// The remote store assigns its own identifier
	sesh.ID = ""

	// Owner references: explicit arguments win, otherwise whatever the
	// record was queued with (the background sweep passes none)
	if userID != "" {
		sesh.User = userID
	}
	if profileID != "" {
		sesh.PooProfile = profileID
	}

	// Best-effort enrichment: a geocoding failure never blocks the upload
	if s.geocoder != nil && !sesh.IsAirplane && sesh.Location != nil {
		place, err := s.geocoder.ResolveCity(ctx, sesh.Location.Coordinates.Lat, sesh.Location.Coordinates.Lon)
		if err != nil {
			log.Printf("⚠️ [SYNC] Geocoding failed for sesh %s: %v", localID, err)
		} else if place != nil {
			sesh.Location.City = place.City
		}
	}

	created, err := s.remote.Create(ctx, sesh)
	if err != nil {
		log.Printf("⚠️ [SYNC] Failed to upload sesh %s: %v", localID, err)
		return false
	}

	if err := s.queue.Remove(localID); err != nil {
		// The upload is confirmed; a failed removal means the item may be
		// retried next run. Logged so the duplicate can be traced.
		log.Printf("⚠️ [SYNC] Uploaded sesh %s as %s but failed to dequeue it: %v", localID, created.ID, err)
	}

	return true
}

// InFlight reports whether a sync run is currently draining the queue
func (s *SyncService) InFlight() bool {
	return s.inFlight.Load()
}
