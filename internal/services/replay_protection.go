package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"entitlement-api/pkg/logging"
)

// ReplayGuard is the in-process first line of webhook dedupe. It only spares
// the database from hot duplicate bursts (providers often redeliver within
// seconds); the durable WebhookEvent ledger is the authority across restarts
// and replicas.
type ReplayGuard struct {
	seen            map[string]time.Time
	mutex           sync.Mutex
	cleanupInterval time.Duration
	entryTTL        time.Duration
	stopCleanup     chan struct{}
}

// NewReplayGuard creates a replay guard and starts its cleanup goroutine.
func NewReplayGuard() *ReplayGuard {
	rg := &ReplayGuard{
		seen:            make(map[string]time.Time),
		cleanupInterval: time.Hour,
		entryTTL:        24 * time.Hour,
		stopCleanup:     make(chan struct{}),
	}

	go rg.startCleanupRoutine()

	return rg
}

// Seen reports whether this event was already observed by this process, and
// records it if not.
func (rg *ReplayGuard) Seen(provider, eventID string) bool {
	if eventID == "" {
		// Without an event id there is nothing to dedupe on.
		return false
	}

	key := rg.entryKey(provider, eventID)

	rg.mutex.Lock()
	defer rg.mutex.Unlock()

	if at, exists := rg.seen[key]; exists {
		logging.Infof("Duplicate webhook delivery detected in-process - event: %s, first seen: %v", eventID, at)
		return true
	}

	rg.seen[key] = time.Now()
	return false
}

// Forget drops an entry so a failed event can be retried without waiting for
// the TTL.
func (rg *ReplayGuard) Forget(provider, eventID string) {
	rg.mutex.Lock()
	defer rg.mutex.Unlock()
	delete(rg.seen, rg.entryKey(provider, eventID))
}

func (rg *ReplayGuard) entryKey(provider, eventID string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", provider, eventID)))
	return hex.EncodeToString(hash[:])
}

func (rg *ReplayGuard) startCleanupRoutine() {
	ticker := time.NewTicker(rg.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rg.cleanup()
		case <-rg.stopCleanup:
			return
		}
	}
}

func (rg *ReplayGuard) cleanup() {
	rg.mutex.Lock()
	defer rg.mutex.Unlock()

	now := time.Now()
	for key, at := range rg.seen {
		if now.Sub(at) > rg.entryTTL {
			delete(rg.seen, key)
		}
	}
}

// Stop stops the cleanup goroutine.
func (rg *ReplayGuard) Stop() {
	close(rg.stopCleanup)
}
