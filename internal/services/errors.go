package services

import "errors"

var (
	// ErrRateLimited means a sesh was started within the rate-limit window.
	// Recoverable: the user waits and retries.
	ErrRateLimited = errors.New("only one poop sesh every 5 minutes")

	// ErrNoActiveSesh means an update/end/cancel arrived with no open sesh
	ErrNoActiveSesh = errors.New("no active poop sesh")

	// ErrActiveSeshExists means a start arrived while a sesh is already open
	ErrActiveSeshExists = errors.New("a poop sesh is already active")

	// ErrSeshNotFound means the requested sesh does not exist remotely
	ErrSeshNotFound = errors.New("poop sesh not found")

	// ErrSyncInFlight means SyncAll was invoked while a previous run is
	// still draining the queue; the caller should simply not retry yet
	ErrSyncInFlight = errors.New("offline sync already in progress")
)
