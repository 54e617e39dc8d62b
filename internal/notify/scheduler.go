package notify

import (
	"log"
	"sync"
	"time"
)

// Reminder is a pending scheduled notification
type Reminder struct {
	Identifier string
	FireAt     time.Time
	Title      string
	Body       string
}

// DeliverFunc is invoked when a reminder fires. Delivery to an actual push
// gateway lives behind this callback.
type DeliverFunc func(reminder Reminder)

// Scheduler schedules user-facing reminders under caller-chosen identifiers.
// Scheduling the same identifier again replaces the pending reminder;
// cancelling an unknown identifier is a no-op.
type Scheduler interface {
	Schedule(identifier string, fireAt time.Time, title, body string)
	Cancel(identifier string)
}

// TimerScheduler is an in-process Scheduler backed by identifier-keyed timers
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	deliver DeliverFunc
	stopped bool
}

// NewTimerScheduler creates a scheduler delivering through the given callback.
// A nil callback logs the reminder instead.
func NewTimerScheduler(deliver DeliverFunc) *TimerScheduler {
	if deliver == nil {
		deliver = func(r Reminder) {
			log.Printf("🔔 [REMINDER] %s: %s — %s", r.Identifier, r.Title, r.Body)
		}
	}
	return &TimerScheduler{
		timers:  make(map[string]*time.Timer),
		deliver: deliver,
	}
}

// Schedule arms a reminder for fireAt, replacing any pending reminder
// registered under the same identifier.
func (s *TimerScheduler) Schedule(identifier string, fireAt time.Time, title, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if prev, ok := s.timers[identifier]; ok {
		prev.Stop()
	}

	reminder := Reminder{Identifier: identifier, FireAt: fireAt, Title: title, Body: body}
	s.timers[identifier] = time.AfterFunc(time.Until(fireAt), func() {
		s.mu.Lock()
		delete(s.timers, identifier)
		s.mu.Unlock()
		s.deliver(reminder)
	})

	log.Printf("⏰ [REMINDER] Scheduled '%s' for %s", identifier, fireAt.Format(time.RFC3339))
}

// Cancel stops a pending reminder. Unknown identifiers (already fired, never
// scheduled) are ignored.
func (s *TimerScheduler) Cancel(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[identifier]; ok {
		timer.Stop()
		delete(s.timers, identifier)
		log.Printf("⏹️  [REMINDER] Cancelled '%s'", identifier)
	}
}

// Pending reports whether a reminder is currently armed under identifier
func (s *TimerScheduler) Pending(identifier string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[identifier]
	return ok
}

// Stop cancels all pending reminders and refuses further scheduling
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
