package queue

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"seshtrack/internal/models"
)

// storageKey is the single blob the whole queue is serialized under,
// matching the device storage layout.
const storageKey = "offline-poop-seshes"

// Store is the on-device queue of seshes pending upload. The backing
// KeyValue has no transactional read-modify-write, so every operation
// serializes through one in-process mutex.
type Store struct {
	mu sync.Mutex
	kv KeyValue
}

// NewStore creates a queue store on top of the given key-value persistence
func NewStore(kv KeyValue) *Store {
	return &Store{kv: kv}
}

// Enqueue appends a sesh to the queue, assigning a fresh client-side UUID
// when the sesh has none, and returns the stored record.
func (s *Store) Enqueue(sesh models.Sesh) (models.Sesh, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seshes, err := s.load()
	if err != nil {
		return models.Sesh{}, err
	}

	if sesh.ID == "" {
		sesh.ID = uuid.New().String()
	}

	seshes = append(seshes, sesh)
	if err := s.save(seshes); err != nil {
		return models.Sesh{}, err
	}

	return sesh, nil
}

// List returns all queued seshes in insertion order
func (s *Store) List() ([]models.Sesh, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Update merges the partial fields into the queued sesh matching id.
// A missing id is silently ignored; callers must not rely on Update
// confirming existence.
func (s *Store) Update(id string, update models.SeshUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seshes, err := s.load()
	if err != nil {
		return err
	}

	changed := false
	for i := range seshes {
		if seshes[i].ID == id {
			update.ApplyTo(&seshes[i])
			changed = true
			break
		}
	}

	if !changed {
		return nil
	}
	return s.save(seshes)
}

// Remove deletes the queued sesh matching id; no-op if absent
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seshes, err := s.load()
	if err != nil {
		return err
	}

	kept := seshes[:0]
	for _, sesh := range seshes {
		if sesh.ID != id {
			kept = append(kept, sesh)
		}
	}

	if len(kept) == len(seshes) {
		return nil
	}
	return s.save(kept)
}

// load reads and decodes the queue blob; callers must hold the mutex
func (s *Store) load() ([]models.Sesh, error) {
	raw, ok, err := s.kv.GetItem(storageKey)
	if err != nil {
		return nil, &PersistenceError{Op: "read", Err: err}
	}
	if !ok || raw == "" {
		return []models.Sesh{}, nil
	}

	var seshes []models.Sesh
	if err := json.Unmarshal([]byte(raw), &seshes); err != nil {
		return nil, &PersistenceError{Op: "decode", Err: err}
	}
	return seshes, nil
}

// save encodes and writes the queue blob; callers must hold the mutex
func (s *Store) save(seshes []models.Sesh) error {
	data, err := json.Marshal(seshes)
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}
	if len(seshes) == 0 {
		if err := s.kv.RemoveItem(storageKey); err != nil {
			return &PersistenceError{Op: "write", Err: err}
		}
		return nil
	}
	if err := s.kv.SetItem(storageKey, string(data)); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	return nil
}
