package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// PubSubService fans sesh events out over Redis pub/sub so every connected
// client sees inserts/updates/deletes as they happen, across instances.
type PubSubService struct {
	redis      *RedisService
	pubsub     *redis.PubSub
	mu         sync.RWMutex
	handlers   map[string][]*Subscription
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
}

// MessageHandler is a callback for handling pub/sub messages
type MessageHandler func(channel string, message *SeshEvent)

// SeshEvent is a realtime event about a sesh record
type SeshEvent struct {
	Type       string                 `json:"type"` // sesh_created, sesh_updated, sesh_deleted
	UserID     string                 `json:"userId"`
	InstanceID string                 `json:"instanceId"` // source instance, for loop filtering
	Payload    map[string]interface{} `json:"payload"`
}

// Subscription is a cancellable handle to a registered handler. Cancel is
// idempotent; callers must cancel on teardown.
type Subscription struct {
	pattern string
	handler MessageHandler
	svc     *PubSubService
	once    sync.Once
}

// Cancel unregisters the handler
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.svc.mu.Lock()
		defer s.svc.mu.Unlock()

		handlers := s.svc.handlers[s.pattern]
		for i, sub := range handlers {
			if sub == s {
				s.svc.handlers[s.pattern] = append(handlers[:i], handlers[i+1:]...)
				break
			}
		}
		if len(s.svc.handlers[s.pattern]) == 0 {
			delete(s.svc.handlers, s.pattern)
		}
	})
}

// NewPubSubService creates a new pub/sub service
func NewPubSubService(redisService *RedisService, instanceID string) *PubSubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubService{
		redis:      redisService,
		handlers:   make(map[string][]*Subscription),
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Subscribe registers a handler for a channel pattern and returns its handle
func (s *PubSubService) Subscribe(pattern string, handler MessageHandler) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscription{pattern: pattern, handler: handler, svc: s}
	s.handlers[pattern] = append(s.handlers[pattern], sub)
	log.Printf("📡 [PUBSUB] Subscribed to pattern: %s", pattern)
	return sub
}

// Start begins listening for pub/sub messages
func (s *PubSubService) Start() error {
	client := s.redis.Client()

	s.pubsub = client.PSubscribe(s.ctx,
		"user:*:events", // per-user sesh events
		"broadcast:*",   // global broadcast
	)

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		return err
	}

	go s.processMessages()

	log.Printf("✅ [PUBSUB] Started listening for messages (instance: %s)", s.instanceID)
	return nil
}

// processMessages handles incoming pub/sub messages
func (s *PubSubService) processMessages() {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleMessage(msg)
		}
	}
}

// handleMessage dispatches a single pub/sub message to matching handlers.
// Events published by this instance are dispatched locally before they hit
// Redis, so remote copies of our own messages are skipped here.
func (s *PubSubService) handleMessage(msg *redis.Message) {
	var event SeshEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to unmarshal message: %v", err)
		return
	}

	if event.InstanceID == s.instanceID {
		return
	}

	s.dispatch(msg.Channel, &event)
}

// dispatch invokes every handler whose pattern matches the channel
func (s *PubSubService) dispatch(channel string, event *SeshEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for pattern, subs := range s.handlers {
		if matchPattern(pattern, channel) {
			for _, sub := range subs {
				go sub.handler(channel, event)
			}
		}
	}
}

// PublishToUser publishes a sesh event to a user's channel
func (s *PubSubService) PublishToUser(ctx context.Context, userID string, msgType string, payload map[string]interface{}) error {
	event := &SeshEvent{
		Type:       msgType,
		UserID:     userID,
		InstanceID: s.instanceID,
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := "user:" + userID + ":events"

	// Local subscribers get the event even when Redis is the only hop for
	// other instances
	s.dispatch(channel, event)

	return s.redis.Client().Publish(ctx, channel, data).Err()
}

// Broadcast publishes an event to all instances
func (s *PubSubService) Broadcast(ctx context.Context, topic string, msgType string, payload map[string]interface{}) error {
	event := &SeshEvent{
		Type:       msgType,
		InstanceID: s.instanceID,
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := "broadcast:" + topic
	s.dispatch(channel, event)
	return s.redis.Client().Publish(ctx, channel, data).Err()
}

// Stop stops the pub/sub service
func (s *PubSubService) Stop() error {
	s.cancel()
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}

// matchPattern checks if a channel matches a pattern like "user:*:events"
func matchPattern(pattern, channel string) bool {
	if pattern == channel {
		return true
	}

	patternParts := strings.Split(pattern, ":")
	channelParts := strings.Split(channel, ":")

	if len(patternParts) != len(channelParts) {
		return false
	}

	for i, part := range patternParts {
		if part != "*" && part != channelParts[i] {
			return false
		}
	}

	return true
}
