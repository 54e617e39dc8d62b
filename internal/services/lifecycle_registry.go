package services

import (
	"sync"

	"seshtrack/internal/notify"
)

// LifecycleRegistry hands out one lifecycle controller per signed-in user,
// creating it lazily on first use. Controllers share the remote store and
// queue but own their user's in-memory state.
type LifecycleRegistry struct {
	remote    RemoteStore
	queue     QueueStore
	scheduler notify.Scheduler
	notifier  notify.Notifier
	probe     ConnectivityProbe
	metrics   *Metrics
	opts      LifecycleOptions

	mu          sync.Mutex
	controllers map[string]*LifecycleService
}

// NewLifecycleRegistry creates a registry with shared collaborators
func NewLifecycleRegistry(remote RemoteStore, queue QueueStore, scheduler notify.Scheduler, notifier notify.Notifier, probe ConnectivityProbe, metrics *Metrics, opts LifecycleOptions) *LifecycleRegistry {
	return &LifecycleRegistry{
		remote:      remote,
		queue:       queue,
		scheduler:   scheduler,
		notifier:    notifier,
		probe:       probe,
		metrics:     metrics,
		opts:        opts,
		controllers: make(map[string]*LifecycleService),
	}
}

// For returns the controller owning the given user's active sesh
func (r *LifecycleRegistry) For(userID, profileID string) *LifecycleService {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctrl, ok := r.controllers[userID]; ok {
		return ctrl
	}

	ctrl := NewLifecycleService(userID, profileID, r.remote, r.queue, r.scheduler, r.notifier, r.probe, r.metrics, r.opts)
	r.controllers[userID] = ctrl
	return ctrl
}
