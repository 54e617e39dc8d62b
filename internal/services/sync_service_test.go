package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"seshtrack/internal/geo"
	"seshtrack/internal/models"
	"seshtrack/internal/queue"
)

// fakeRemote is a thread-safe RemoteStore double. failWhen decides per
// payload whether Create is rejected.
type fakeRemote struct {
	mu       sync.Mutex
	created  []models.Sesh
	updates  map[string]models.SeshUpdate
	deleted  []string
	active   *models.Sesh
	recent   *models.Sesh
	failWhen func(models.Sesh) bool

	createErr error
	updateErr error
	recentErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{updates: make(map[string]models.SeshUpdate)}
}

func (f *fakeRemote) Create(_ context.Context, sesh models.Sesh) (models.Sesh, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return models.Sesh{}, f.createErr
	}
	if f.failWhen != nil && f.failWhen(sesh) {
		return models.Sesh{}, errors.New("remote rejected sesh")
	}

	sesh.ID = fmt.Sprintf("remote-%d", len(f.created)+1)
	f.created = append(f.created, sesh)
	return sesh, nil
}

func (f *fakeRemote) Update(_ context.Context, id string, update models.SeshUpdate) (models.Sesh, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return models.Sesh{}, f.updateErr
	}
	f.updates[id] = update
	return models.Sesh{ID: id}, nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRemote) GetActive(context.Context, string) (*models.Sesh, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeRemote) LastStartedSince(context.Context, string, time.Time) (*models.Sesh, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.recent, nil
}

func (f *fakeRemote) createdSeshes() []models.Sesh {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Sesh(nil), f.created...)
}

// fakeGeocoder resolves every lookup to the same place, or fails
type fakeGeocoder struct {
	mu    sync.Mutex
	calls int
	place *geo.Place
	err   error
}

func (f *fakeGeocoder) ResolveCity(context.Context, float64, float64) (*geo.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.place, nil
}

// recordingNotifier captures user notices
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func TestSyncAll_EmptyQueueIsNoOp(t *testing.T) {
	remote := newFakeRemote()
	notifier := &recordingNotifier{}
	store := queue.NewStore(queue.NewMemoryKV())
	svc := NewSyncService(store, remote, nil, notifier, nil)

	result, err := svc.SyncAll(context.Background(), "user-1", "profile-1")
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if result.Synced != 0 || result.Failed != 0 {
		t.Errorf("Expected {0,0}, got %+v", result)
	}
	if len(remote.createdSeshes()) != 0 {
		t.Error("Empty queue must not issue remote calls")
	}
	if notifier.count() != 0 {
		t.Error("Empty queue must not emit notices")
	}
}

func TestSyncAll_RemovesOnlySyncedItems(t *testing.T) {
	remote := newFakeRemote()
	// Reject every sesh tagged with company time
	remote.failWhen = func(s models.Sesh) bool { return s.CompanyTime }

	store := queue.NewStore(queue.NewMemoryKV())
	for i := 0; i < 5; i++ {
		_, err := store.Enqueue(models.Sesh{
			CompanyTime: i < 2, // 2 of 5 fail
			Started:     time.Now(),
		})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	svc := NewSyncService(store, remote, nil, nil, nil)
	result, err := svc.SyncAll(context.Background(), "user-1", "profile-1")
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	if result.Synced != 3 || result.Failed != 2 {
		t.Errorf("Expected {3,2}, got %+v", result)
	}

	remaining, _ := store.List()
	if len(remaining) != 2 {
		t.Fatalf("Expected 2 retained items, got %d", len(remaining))
	}
	for _, sesh := range remaining {
		if !sesh.CompanyTime {
			t.Error("A successfully synced sesh was retained")
		}
	}
}

func TestSyncAll_GeocodeFailureDoesNotBlock(t *testing.T) {
	remote := newFakeRemote()
	geocoder := &fakeGeocoder{err: errors.New("mapbox down")}
	store := queue.NewStore(queue.NewMemoryKV())

	store.Enqueue(models.Sesh{
		Started: time.Now(),
		Location: &models.SeshLocation{
			Coordinates: models.Coordinates{Lat: 10, Lon: 20},
		},
	})

	svc := NewSyncService(store, remote, geocoder, nil, nil)
	result, err := svc.SyncAll(context.Background(), "user-1", "profile-1")
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	if result.Synced != 1 || result.Failed != 0 {
		t.Fatalf("Expected {1,0}, got %+v", result)
	}

	created := remote.createdSeshes()
	if len(created) != 1 {
		t.Fatalf("Expected 1 remote create, got %d", len(created))
	}
	if created[0].Location.City != "" {
		t.Errorf("Expected no city on geocode failure, got %q", created[0].Location.City)
	}

	remaining, _ := store.List()
	if len(remaining) != 0 {
		t.Error("Item should be dequeued despite geocode failure")
	}
}

func TestSyncAll_StripsLocalIDAndSetsOwner(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	store.Enqueue(models.Sesh{ID: "local-abc", Started: time.Now()})

	svc := NewSyncService(store, remote, nil, nil, nil)
	if _, err := svc.SyncAll(context.Background(), "user-9", "profile-9"); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	created := remote.createdSeshes()
	if len(created) != 1 {
		t.Fatalf("Expected 1 create, got %d", len(created))
	}
	if created[0].User != "user-9" || created[0].PooProfile != "profile-9" {
		t.Errorf("Owner references not set: %+v", created[0])
	}
}

func TestSyncAll_ConcurrentInvocationRefused(t *testing.T) {
	remote := newFakeRemote()
	store := queue.NewStore(queue.NewMemoryKV())
	svc := NewSyncService(store, remote, nil, nil, nil)

	// Simulate an in-flight run
	svc.inFlight.Store(true)

	_, err := svc.SyncAll(context.Background(), "user-1", "profile-1")
	if !errors.Is(err, ErrSyncInFlight) {
		t.Fatalf("Expected ErrSyncInFlight, got %v", err)
	}

	svc.inFlight.Store(false)
	if _, err := svc.SyncAll(context.Background(), "user-1", "profile-1"); err != nil {
		t.Fatalf("Guard should release after the run: %v", err)
	}
}

func TestSyncAll_TwoItemScenario(t *testing.T) {
	t1 := time.Now().Add(-2 * time.Hour)
	t1End := t1.Add(5 * time.Minute)
	t2 := time.Now().Add(-1 * time.Hour)

	remote := newFakeRemote()
	remote.failWhen = func(s models.Sesh) bool { return s.Ended == nil } // reject the open one
	geocoder := &fakeGeocoder{place: &geo.Place{City: "Duluth"}}

	store := queue.NewStore(queue.NewMemoryKV())
	store.Enqueue(models.Sesh{
		ID:      "local-1",
		Started: t1,
		Ended:   &t1End,
		Location: &models.SeshLocation{
			Coordinates: models.Coordinates{Lat: 10, Lon: 20},
		},
	})
	store.Enqueue(models.Sesh{ID: "local-2", Started: t2})

	svc := NewSyncService(store, remote, geocoder, nil, nil)
	result, err := svc.SyncAll(context.Background(), "user-1", "profile-1")
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	if result.Synced != 1 || result.Failed != 1 {
		t.Errorf("Expected {1,1}, got %+v", result)
	}

	remaining, _ := store.List()
	if len(remaining) != 1 || remaining[0].ID != "local-2" {
		t.Fatalf("Expected only local-2 retained, got %+v", remaining)
	}

	created := remote.createdSeshes()
	if len(created) != 1 {
		t.Fatalf("Expected 1 create, got %d", len(created))
	}
	if created[0].Location.City != "Duluth" {
		t.Errorf("Expected geocoded city on upload, got %q", created[0].Location.City)
	}
}
