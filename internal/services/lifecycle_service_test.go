package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"seshtrack/internal/models"
	"seshtrack/internal/queue"
)

// fakeScheduler records reminder scheduling and cancellation
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []string
	cancelled []string
	fireAt    time.Time
}

func (f *fakeScheduler) Schedule(identifier string, fireAt time.Time, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, identifier)
	f.fireAt = fireAt
}

func (f *fakeScheduler) Cancel(identifier string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, identifier)
}

// toggleProbe is a ConnectivityProbe flipped by the test
type toggleProbe struct{ online bool }

func (p *toggleProbe) Online() bool { return p.online }

func newLifecycle(remote *fakeRemote, store *queue.Store, sched *fakeScheduler, probe ConnectivityProbe) *LifecycleService {
	return NewLifecycleService("user-1", "profile-1", remote, store, sched, nil, probe, nil, LifecycleOptions{})
}

func TestLifecycle_StartCreatesRemoteAndSchedulesReminder(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	sched := &fakeScheduler{}
	svc := newLifecycle(remote, store, sched, nil)

	before := time.Now()
	sesh, err := svc.Start(context.Background(), models.StartSeshRequest{
		Coordinates: &models.Coordinates{Lat: 44.9, Lon: -93.2},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if sesh.ID == "" {
		t.Error("Expected the remote store to assign an identifier")
	}
	if !sesh.IsPublic {
		t.Error("New seshes default to public")
	}
	if sesh.CompanyTime {
		t.Error("New seshes default to off the clock")
	}
	if sesh.Location == nil || sesh.Location.Coordinates.Lat != 44.9 {
		t.Error("Coordinates were not captured")
	}

	if len(sched.scheduled) != 1 || sched.scheduled[0] != ReminderIdentifier {
		t.Fatalf("Expected one reminder under %q, got %v", ReminderIdentifier, sched.scheduled)
	}
	wantFire := before.Add(10 * time.Minute)
	if sched.fireAt.Before(wantFire.Add(-time.Second)) || sched.fireAt.After(wantFire.Add(time.Minute)) {
		t.Errorf("Reminder fires at %v, expected roughly %v", sched.fireAt, wantFire)
	}

	if svc.Active() == nil {
		t.Error("Controller should hold the open sesh")
	}
}

func TestLifecycle_StartRefusedWhileActive(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	svc := newLifecycle(remote, store, &fakeScheduler{}, nil)

	if _, err := svc.Start(context.Background(), models.StartSeshRequest{}); err != nil {
		t.Fatalf("First start failed: %v", err)
	}
	_, err := svc.Start(context.Background(), models.StartSeshRequest{})
	if !errors.Is(err, ErrActiveSeshExists) {
		t.Fatalf("Expected ErrActiveSeshExists, got %v", err)
	}
	if len(remote.createdSeshes()) != 1 {
		t.Error("Second start must not reach the remote store")
	}
}

func TestLifecycle_StartRateLimited(t *testing.T) {
	remote := newFakeRemote()
	remote.recent = &models.Sesh{ID: "recent", Started: time.Now().Add(-2 * time.Minute)}
	store := queue.NewStore(queue.NewMemoryKV())
	sched := &fakeScheduler{}
	svc := newLifecycle(remote, store, sched, nil)

	_, err := svc.Start(context.Background(), models.StartSeshRequest{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}
	if len(remote.createdSeshes()) != 0 {
		t.Error("Rate-limited start must not create a sesh")
	}
	if len(sched.scheduled) != 0 {
		t.Error("Rate-limited start must not schedule a reminder")
	}
	if svc.Active() != nil {
		t.Error("Controller must stay without an active sesh")
	}
}

func TestLifecycle_StartOfflineQueuesLocally(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	sched := &fakeScheduler{}
	svc := newLifecycle(remote, store, sched, &toggleProbe{online: false})

	sesh, err := svc.Start(context.Background(), models.StartSeshRequest{IsAirplane: true})
	if err != nil {
		t.Fatalf("Offline start failed: %v", err)
	}

	if len(remote.createdSeshes()) != 0 {
		t.Error("Offline start must not hit the remote store")
	}
	queued, _ := store.List()
	if len(queued) != 1 || queued[0].ID != sesh.ID {
		t.Fatalf("Expected the sesh in the offline queue, got %+v", queued)
	}
	if !queued[0].IsAirplane {
		t.Error("Airplane flag lost on the queued record")
	}
	if queued[0].Location != nil {
		t.Error("Airplane seshes carry no location")
	}
	// Reminder is armed regardless of connectivity
	if len(sched.scheduled) != 1 {
		t.Errorf("Expected one reminder, got %d", len(sched.scheduled))
	}
}

func TestLifecycle_OfflineRateLimitScansQueue(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	store.Enqueue(models.Sesh{
		PooProfile: "profile-1",
		Started:    time.Now().Add(-time.Minute),
	})
	svc := newLifecycle(remote, store, &fakeScheduler{}, &toggleProbe{online: false})

	_, err := svc.Start(context.Background(), models.StartSeshRequest{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited from the queued record, got %v", err)
	}
}

func TestLifecycle_UpdateMergesIntoActive(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	svc := newLifecycle(remote, store, &fakeScheduler{}, nil)

	started, _ := svc.Start(context.Background(), models.StartSeshRequest{})

	revelations := "should have brought my phone charger"
	bristol := 3
	err := svc.Update(context.Background(), models.SeshUpdate{
		Revelations:  &revelations,
		BristolScore: &bristol,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	active := svc.Active()
	if active.Revelations != revelations || active.BristolScore != 3 {
		t.Errorf("Update not merged into active sesh: %+v", active)
	}
	if _, ok := remote.updates[started.ID]; !ok {
		t.Error("Update never reached the remote store")
	}
}

func TestLifecycle_UpdateFailureLeavesStateUntouched(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	notifier := &recordingNotifier{}
	svc := NewLifecycleService("user-1", "profile-1", remote, store, &fakeScheduler{}, notifier, nil, nil, LifecycleOptions{})

	svc.Start(context.Background(), models.StartSeshRequest{})
	remote.updateErr = errors.New("remote down")

	bristol := 5
	err := svc.Update(context.Background(), models.SeshUpdate{BristolScore: &bristol})
	if err == nil {
		t.Fatal("Expected the update error to surface")
	}

	if svc.Active().BristolScore != 0 {
		t.Error("Failed update must not change the in-memory sesh")
	}
	if notifier.count() != 1 {
		t.Errorf("Expected one trouble notice, got %d", notifier.count())
	}
}

func TestLifecycle_UpdateValidationRejected(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	svc := newLifecycle(remote, store, &fakeScheduler{}, nil)

	svc.Start(context.Background(), models.StartSeshRequest{})

	bristol := 12
	if err := svc.Update(context.Background(), models.SeshUpdate{BristolScore: &bristol}); err == nil {
		t.Fatal("Expected an out-of-range bristol score to be rejected")
	}
	if len(remote.updates) != 0 {
		t.Error("Invalid update must not reach the remote store")
	}
}

func TestLifecycle_EndClosesAndCancelsReminder(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	sched := &fakeScheduler{}
	svc := newLifecycle(remote, store, sched, nil)

	svc.Start(context.Background(), models.StartSeshRequest{})

	revelations := "done"
	ended, err := svc.End(context.Background(), models.SeshUpdate{Revelations: &revelations})
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if ended.Ended == nil {
		t.Error("Ended sesh must carry its end time")
	}
	if ended.Revelations != "done" {
		t.Error("Final fields not merged")
	}
	if svc.Active() != nil {
		t.Error("Controller should return to having no active sesh")
	}
	if len(sched.cancelled) != 1 || sched.cancelled[0] != ReminderIdentifier {
		t.Errorf("Expected the reminder to be cancelled, got %v", sched.cancelled)
	}

	if _, err := svc.End(context.Background(), models.SeshUpdate{}); !errors.Is(err, ErrNoActiveSesh) {
		t.Fatalf("Second end should report ErrNoActiveSesh, got %v", err)
	}
}

func TestLifecycle_EndFailureRollsBack(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	sched := &fakeScheduler{}
	svc := newLifecycle(remote, store, sched, nil)

	svc.Start(context.Background(), models.StartSeshRequest{})
	remote.updateErr = errors.New("remote down")

	if _, err := svc.End(context.Background(), models.SeshUpdate{}); err == nil {
		t.Fatal("Expected the end error to surface")
	}

	active := svc.Active()
	if active == nil {
		t.Fatal("Failed end must leave the sesh open")
	}
	if active.Ended != nil {
		t.Error("Failed end must not stamp an end time")
	}
	if len(sched.cancelled) != 0 {
		t.Error("Failed end must keep the reminder armed")
	}

	// Retry after the remote recovers
	remote.updateErr = nil
	if _, err := svc.End(context.Background(), models.SeshUpdate{}); err != nil {
		t.Fatalf("Retry after recovery failed: %v", err)
	}
	if svc.Active() != nil {
		t.Error("Retry should close the sesh")
	}
}

func TestLifecycle_CancelDeletesAndCancelsReminder(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	sched := &fakeScheduler{}
	svc := newLifecycle(remote, store, sched, nil)

	started, _ := svc.Start(context.Background(), models.StartSeshRequest{})

	if err := svc.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if len(remote.deleted) != 1 || remote.deleted[0] != started.ID {
		t.Errorf("Expected remote delete of %q, got %v", started.ID, remote.deleted)
	}
	if svc.Active() != nil {
		t.Error("Cancel should discard the active sesh")
	}
	if len(sched.cancelled) != 1 {
		t.Error("Cancel should disarm the reminder")
	}
}

func TestLifecycle_CancelOfflineRemovesFromQueue(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	svc := newLifecycle(remote, store, &fakeScheduler{}, &toggleProbe{online: false})

	svc.Start(context.Background(), models.StartSeshRequest{})
	if err := svc.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	queued, _ := store.List()
	if len(queued) != 0 {
		t.Errorf("Cancel should remove the queued record, got %+v", queued)
	}
	if len(remote.deleted) != 0 {
		t.Error("Offline cancel must not reach the remote store")
	}
}

func TestLifecycle_RefreshAdoptsRemoteActive(t *testing.T) {
	remote := newFakeRemote()
	remote.active = &models.Sesh{ID: "remote-open", User: "user-1", Started: time.Now(), Open: true}
	store := queue.NewStore(queue.NewMemoryKV())
	svc := newLifecycle(remote, store, &fakeScheduler{}, nil)

	active, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if active == nil || active.ID != "remote-open" {
		t.Fatalf("Expected the remote open sesh, got %+v", active)
	}
	if svc.Active() == nil {
		t.Error("Refresh should adopt the remote sesh")
	}
}

func TestLifecycle_RefreshKeepsLocallyQueuedActive(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	probe := &toggleProbe{online: false}
	svc := newLifecycle(remote, store, &fakeScheduler{}, probe)

	started, _ := svc.Start(context.Background(), models.StartSeshRequest{})

	// Back online, remote knows nothing about the queued sesh yet
	probe.online = true
	active, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if active == nil || active.ID != started.ID {
		t.Fatalf("Refresh must keep the locally-queued open sesh, got %+v", active)
	}
}
