package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"seshtrack/internal/database"
	"seshtrack/internal/models"
)

// RemoteStore is the remote record-store boundary the sync engine and
// lifecycle controller depend on. Kept narrow so both are testable with
// doubles; SeshService is the Mongo-backed implementation.
type RemoteStore interface {
	Create(ctx context.Context, sesh models.Sesh) (models.Sesh, error)
	Update(ctx context.Context, id string, update models.SeshUpdate) (models.Sesh, error)
	Delete(ctx context.Context, id string) error
	GetActive(ctx context.Context, userID string) (*models.Sesh, error)
	LastStartedSince(ctx context.Context, profileID string, since time.Time) (*models.Sesh, error)
}

// SeshService handles remote CRUD for poop seshes
type SeshService struct {
	db         *database.MongoDB
	collection *mongo.Collection
	pubsub     *PubSubService
}

// NewSeshService creates a new sesh service. pubsub may be nil when realtime
// events are disabled.
func NewSeshService(db *database.MongoDB, pubsub *PubSubService) *SeshService {
	return &SeshService{
		db:         db,
		collection: db.Collection(database.CollectionSeshes),
		pubsub:     pubsub,
	}
}

// Create inserts a sesh and returns it with its server-assigned ID.
// Any client-side queue ID must already be stripped by the caller.
func (s *SeshService) Create(ctx context.Context, sesh models.Sesh) (models.Sesh, error) {
	if sesh.User == "" {
		return models.Sesh{}, fmt.Errorf("user is required")
	}
	if sesh.Started.IsZero() {
		return models.Sesh{}, fmt.Errorf("started timestamp is required")
	}

	// Server-assigned identifier; disjoint from the client UUID space
	sesh.ID = primitive.NewObjectID().Hex()
	sesh.Open = sesh.Ended == nil

	if _, err := s.collection.InsertOne(ctx, sesh); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Sesh{}, ErrActiveSeshExists
		}
		return models.Sesh{}, fmt.Errorf("failed to create sesh: %w", err)
	}

	s.publish(ctx, sesh.User, "sesh_created", sesh.ID)
	return sesh, nil
}

// Update merges the partial fields into the sesh matching id
func (s *SeshService) Update(ctx context.Context, id string, update models.SeshUpdate) (models.Sesh, error) {
	if err := update.Validate(); err != nil {
		return models.Sesh{}, err
	}

	fields := bson.M{}
	if update.IsPublic != nil {
		fields["isPublic"] = *update.IsPublic
	}
	if update.CompanyTime != nil {
		fields["companyTime"] = *update.CompanyTime
	}
	if update.Revelations != nil {
		fields["revelations"] = *update.Revelations
	}
	if update.BristolScore != nil {
		fields["bristolScore"] = *update.BristolScore
	}
	if update.Location != nil {
		fields["location"] = update.Location
	}
	if update.Ended != nil {
		fields["ended"] = *update.Ended
		fields["isOpen"] = false
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Sesh
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": fields}, opts).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return models.Sesh{}, ErrSeshNotFound
	}
	if err != nil {
		return models.Sesh{}, fmt.Errorf("failed to update sesh: %w", err)
	}

	s.publish(ctx, updated.User, "sesh_updated", updated.ID)
	return updated, nil
}

// Delete removes a sesh
func (s *SeshService) Delete(ctx context.Context, id string) error {
	var sesh models.Sesh
	err := s.collection.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&sesh)
	if err == mongo.ErrNoDocuments {
		return ErrSeshNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete sesh: %w", err)
	}

	s.publish(ctx, sesh.User, "sesh_deleted", id)
	return nil
}

// GetActive returns the user's open sesh, or nil when none exists.
// The partial unique index guarantees at most one match.
func (s *SeshService) GetActive(ctx context.Context, userID string) (*models.Sesh, error) {
	filter := bson.M{
		"user":   userID,
		"isOpen": true,
	}

	var sesh models.Sesh
	err := s.collection.FindOne(ctx, filter).Decode(&sesh)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active sesh: %w", err)
	}
	return &sesh, nil
}

// LastStartedSince returns the most recent sesh for the profile started at or
// after the given instant, or nil when none exists. Backs the start rate limit.
func (s *SeshService) LastStartedSince(ctx context.Context, profileID string, since time.Time) (*models.Sesh, error) {
	filter := bson.M{
		"pooProfile": profileID,
		"started":    bson.M{"$gte": since},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "started", Value: -1}})

	var sesh models.Sesh
	err := s.collection.FindOne(ctx, filter, opts).Decode(&sesh)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query recent seshes: %w", err)
	}
	return &sesh, nil
}

// History returns finished seshes, newest first. With public=true it returns
// the public feed instead of the user's own history.
func (s *SeshService) History(ctx context.Context, userID string, public bool, limit int) ([]models.Sesh, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	filter := bson.M{
		"isOpen": false,
		"ended":  bson.M{"$ne": nil},
	}
	if public {
		filter["isPublic"] = true
	} else {
		filter["user"] = userID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "started", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list seshes: %w", err)
	}
	defer cursor.Close(ctx)

	seshes := make([]models.Sesh, 0)
	for cursor.Next(ctx) {
		var sesh models.Sesh
		if err := cursor.Decode(&sesh); err != nil {
			log.Printf("⚠️ Failed to decode sesh: %v", err)
			continue
		}
		seshes = append(seshes, sesh)
	}

	return seshes, nil
}

// CloseStale force-closes open seshes started before the cutoff and returns
// how many were closed. Run from the background reaper job.
func (s *SeshService) CloseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"isOpen":  true,
		"started": bson.M{"$lt": cutoff},
	}
	update := bson.M{
		"$set": bson.M{
			"ended":  time.Now(),
			"isOpen": false,
		},
	}

	result, err := s.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to close stale seshes: %w", err)
	}
	return result.ModifiedCount, nil
}

// publish emits a realtime sesh event, best effort
func (s *SeshService) publish(ctx context.Context, userID, eventType, seshID string) {
	if s.pubsub == nil || userID == "" {
		return
	}
	if err := s.pubsub.PublishToUser(ctx, userID, eventType, map[string]interface{}{
		"seshId": seshID,
	}); err != nil {
		log.Printf("⚠️ Failed to publish %s event: %v", eventType, err)
	}
}
