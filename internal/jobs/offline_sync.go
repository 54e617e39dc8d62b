package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"seshtrack/internal/services"
)

// syncLockKey guards the drain across instances sharing one queue replica
const syncLockKey = "lock:offline-sync"

// OfflineSyncJob periodically drains the offline sesh queue into the remote
// store. Complements the event-driven triggers (reconnect, app foreground,
// manual retry) with a steady sweep.
type OfflineSyncJob struct {
	sync       *services.SyncService
	redis      *services.RedisService
	instanceID string
	userID     string
	profileID  string
}

// NewOfflineSyncJob creates the sweep job for the given queue owner.
// redis may be nil when the deployment runs a single instance.
func NewOfflineSyncJob(sync *services.SyncService, redis *services.RedisService, instanceID, userID, profileID string) *OfflineSyncJob {
	return &OfflineSyncJob{
		sync:       sync,
		redis:      redis,
		instanceID: instanceID,
		userID:     userID,
		profileID:  profileID,
	}
}

func (j *OfflineSyncJob) Name() string { return "offline-sync" }

// Run drains the queue once. The in-process guard in SyncService already
// serializes triggers; the Redis lock extends that across instances.
func (j *OfflineSyncJob) Run(ctx context.Context) error {
	if j.redis != nil {
		acquired, err := j.redis.AcquireLock(ctx, syncLockKey, j.instanceID, 2*time.Minute)
		if err != nil {
			return err
		}
		if !acquired {
			log.Println("⏭️  [SYNC] Another instance is draining the queue, skipping")
			return nil
		}
		defer j.redis.ReleaseLock(ctx, syncLockKey, j.instanceID)
	}

	result, err := j.sync.SyncAll(ctx, j.userID, j.profileID)
	if errors.Is(err, services.ErrSyncInFlight) {
		log.Println("⏭️  [SYNC] A sync run is already in flight, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	if result.Synced > 0 || result.Failed > 0 {
		log.Printf("🔄 [SYNC] Sweep finished: %d synced, %d failed", result.Synced, result.Failed)
	}
	return nil
}
