package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"seshtrack/internal/models"
	"seshtrack/internal/notify"
)

// ReminderIdentifier is the fixed identifier the "are you ok?" reminder is
// scheduled under. Re-scheduling it replaces any pending reminder, so at
// most one is ever armed per active sesh.
const ReminderIdentifier = "poop-sesh-started"

const (
	reminderTitle = "Are you ok?"
	reminderBody  = "You've been sitting there for a while. Are you ok?"
)

// ConnectivityProbe reports whether the remote store is reachable. The
// mobile client feeds this from the OS network state; server-side it is
// AlwaysOnline.
type ConnectivityProbe interface {
	Online() bool
}

// AlwaysOnline is a ConnectivityProbe that never reports offline
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool { return true }

// LifecycleOptions tunes a lifecycle controller
type LifecycleOptions struct {
	RateLimitWindow time.Duration // min gap between starts, 0 = 5 minutes
	ReminderDelay   time.Duration // reminder after start, 0 = 10 minutes
}

// LifecycleService owns the single currently-open sesh for one signed-in
// user: two states, NoActiveSesh and ActiveSeshOpen, with start/update/end/
// cancel transitions. All collaborators are passed in explicitly.
type LifecycleService struct {
	userID    string
	profileID string

	remote    RemoteStore
	queue     QueueStore
	scheduler notify.Scheduler
	notifier  notify.Notifier
	probe     ConnectivityProbe
	metrics   *Metrics

	rateLimitWindow time.Duration
	reminderDelay   time.Duration

	mu            sync.Mutex
	active        *models.Sesh
	activeIsLocal bool // active sesh still lives in the offline queue
}

// NewLifecycleService creates a controller for one user/profile pair.
// notifier, probe, and metrics may be nil.
func NewLifecycleService(userID, profileID string, remote RemoteStore, queue QueueStore, scheduler notify.Scheduler, notifier notify.Notifier, probe ConnectivityProbe, metrics *Metrics, opts LifecycleOptions) *LifecycleService {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if probe == nil {
		probe = AlwaysOnline{}
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = 5 * time.Minute
	}
	if opts.ReminderDelay <= 0 {
		opts.ReminderDelay = 10 * time.Minute
	}
	return &LifecycleService{
		userID:          userID,
		profileID:       profileID,
		remote:          remote,
		queue:           queue,
		scheduler:       scheduler,
		notifier:        notifier,
		probe:           probe,
		metrics:         metrics,
		rateLimitWindow: opts.RateLimitWindow,
		reminderDelay:   opts.ReminderDelay,
	}
}

// Active returns the in-memory open sesh, or nil in the NoActiveSesh state
func (s *LifecycleService) Active() *models.Sesh {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	copied := *s.active
	return &copied
}

// Start opens a new sesh. Refused with ErrRateLimited when any sesh for the
// profile started inside the rate-limit window, and with ErrActiveSeshExists
// when one is already open. When the connectivity probe reports offline the
// sesh is appended to the offline queue instead of created remotely.
func (s *LifecycleService) Start(ctx context.Context, req models.StartSeshRequest) (*models.Sesh, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrActiveSeshExists
	}

	online := s.probe.Online()
	now := time.Now()

	limited, err := s.rateLimited(ctx, online, now)
	if err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if limited {
		if s.metrics != nil {
			s.metrics.RateLimited.Inc()
		}
		return nil, ErrRateLimited
	}

	sesh := models.Sesh{
		User:         s.userID,
		PooProfile:   s.profileID,
		IsPublic:     true,
		CompanyTime:  false,
		BristolScore: 0,
		IsAirplane:   req.IsAirplane,
		Started:      now,
	}
	if !req.IsAirplane && req.Coordinates != nil {
		sesh.Location = &models.SeshLocation{Coordinates: *req.Coordinates}
	}

	var created models.Sesh
	if online {
		created, err = s.remote.Create(ctx, sesh)
	} else {
		created, err = s.queue.Enqueue(sesh)
	}
	if err != nil {
		return nil, err
	}

	// Same identifier every time: scheduling replaces any stale reminder
	s.scheduler.Schedule(ReminderIdentifier, now.Add(s.reminderDelay), reminderTitle, reminderBody)

	s.active = &created
	s.activeIsLocal = !online
	if s.metrics != nil {
		s.metrics.SeshesStarted.Inc()
	}

	log.Printf("🚽 Sesh %s started (user %s, offline=%v)", created.ID, s.userID, !online)
	copied := created
	return &copied, nil
}

// Update merges partial fields into the open sesh. The state machine stays
// in ActiveSeshOpen whether the write lands or not.
func (s *LifecycleService) Update(ctx context.Context, update models.SeshUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoActiveSesh
	}
	if err := update.Validate(); err != nil {
		return err
	}

	if err := s.write(ctx, update); err != nil {
		log.Printf("⚠️ Failed to update sesh %s: %v", s.active.ID, err)
		s.notifier.Notify("We had trouble updating the poop sesh")
		return err
	}

	update.ApplyTo(s.active)
	return nil
}

// End closes the open sesh: Ended=now plus whatever revelations/bristol the
// form accumulated, reminder cancelled. On a failed write the controller
// stays in ActiveSeshOpen so the client and server cannot disagree about
// whether a sesh is still running.
func (s *LifecycleService) End(ctx context.Context, final models.SeshUpdate) (*models.Sesh, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil, ErrNoActiveSesh
	}
	if err := final.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	final.Ended = &now

	if err := s.write(ctx, final); err != nil {
		log.Printf("⚠️ Failed to end sesh %s: %v", s.active.ID, err)
		s.notifier.Notify("We had trouble ending the poop sesh")
		return nil, err
	}

	final.ApplyTo(s.active)
	ended := *s.active
	s.active = nil
	s.activeIsLocal = false

	// Safe even if the reminder already fired or was never scheduled
	s.scheduler.Cancel(ReminderIdentifier)

	if s.metrics != nil {
		s.metrics.SeshesEnded.Inc()
	}

	log.Printf("🏁 Sesh %s ended (user %s)", ended.ID, s.userID)
	return &ended, nil
}

// Cancel discards the open sesh without recording it
func (s *LifecycleService) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoActiveSesh
	}

	// The reminder goes away whether or not the delete lands
	defer s.scheduler.Cancel(ReminderIdentifier)

	var err error
	if s.activeIsLocal {
		err = s.queue.Remove(s.active.ID)
	} else {
		err = s.remote.Delete(ctx, s.active.ID)
	}
	if err != nil {
		log.Printf("⚠️ Failed to cancel sesh %s: %v", s.active.ID, err)
		s.notifier.Notify("We had trouble canceling the poop sesh")
		return err
	}

	log.Printf("🗑️ Sesh %s canceled (user %s)", s.active.ID, s.userID)
	s.active = nil
	s.activeIsLocal = false
	s.notifier.Notify("Poop sesh canceled successfully")
	return nil
}

// Refresh re-fetches the open sesh from the remote store and adopts it,
// reconciling the in-memory state after restarts or missed writes.
func (s *LifecycleService) Refresh(ctx context.Context) (*models.Sesh, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.probe.Online() {
		if s.active == nil {
			return nil, nil
		}
		copied := *s.active
		return &copied, nil
	}

	active, err := s.remote.GetActive(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		// A locally-queued open sesh is still ours even when the remote
		// store has none
		if s.active != nil && s.activeIsLocal {
			copied := *s.active
			return &copied, nil
		}
		s.active = nil
		return nil, nil
	}

	s.active = active
	s.activeIsLocal = false
	copied := *active
	return &copied, nil
}

// rateLimited checks for any sesh of this profile started inside the window.
// Online it asks the remote store; offline it scans the local queue, matching
// the client behavior.
func (s *LifecycleService) rateLimited(ctx context.Context, online bool, now time.Time) (bool, error) {
	since := now.Add(-s.rateLimitWindow)

	if online {
		last, err := s.remote.LastStartedSince(ctx, s.profileID, since)
		if err != nil {
			return false, err
		}
		return last != nil, nil
	}

	queued, err := s.queue.List()
	if err != nil {
		return false, err
	}
	for _, sesh := range queued {
		if sesh.PooProfile != s.profileID && sesh.PooProfile != "" {
			continue
		}
		if sesh.Started.After(since) {
			return true, nil
		}
	}
	return false, nil
}

// write routes a partial update to wherever the active sesh lives
func (s *LifecycleService) write(ctx context.Context, update models.SeshUpdate) error {
	if s.activeIsLocal {
		return s.queue.Update(s.active.ID, update)
	}
	_, err := s.remote.Update(ctx, s.active.ID, update)
	return err
}
