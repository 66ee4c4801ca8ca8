package session

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"collab-app/internal/models"
	"collab-app/pkg/logger"
)

// reconcileTick drives the per-room reconcile loop; the read/write intervals
// gate the actual store traffic.
const reconcileTick = 200 * time.Millisecond

// HandleUpdate applies a CRDT update blob from a local peer, fans it out to
// every other local peer and nudges reconciliation. The merge is idempotent
// and commutative, so no deduplication bookkeeping is needed here; a blob
// the engine rejects is a protocol violation and is dropped.
func (s *Service) HandleUpdate(ctx context.Context, roomID, origin string, update []byte) {
	room := s.registry.Lookup(roomID)
	if room == nil || len(update) == 0 {
		return
	}

	room.mu.Lock()
	err := room.doc.ApplyUpdate(update)
	room.mu.Unlock()
	if err != nil {
		logger.Debug("Ignoring malformed update from %s in room %s: %v", origin, roomID, err)
		return
	}

	frame, _ := json.Marshal(models.UpdateMessage{Type: models.MsgYjsUpdate, Update: update})
	room.broadcast(frame, origin)

	s.reconcile(ctx, room)
}

// reconcileLoop keeps an idle room converging with the durable copy until
// the registry evicts it.
func (s *Service) reconcileLoop(room *Room) {
	ticker := time.NewTicker(reconcileTick)
	defer ticker.Stop()

	for {
		select {
		case <-room.done:
			return
		case <-ticker.C:
			s.reconcile(context.Background(), room)
		}
	}
}

// reconcile runs at most one read and one write cycle, each gated by its
// interval. The timestamps advance when a cycle starts, not when it
// succeeds, so a flaky store is retried on cadence instead of hammered.
func (s *Service) reconcile(ctx context.Context, room *Room) {
	now := time.Now()

	room.mu.Lock()
	if !room.loaded {
		room.mu.Unlock()
		return
	}
	needRead := now.Sub(room.lastReadAt) >= s.cfg.ReconcileReadInterval
	if needRead {
		room.lastReadAt = now
	}
	needWrite := now.Sub(room.lastWrittenAt) >= s.cfg.ReconcileWriteInterval
	if needWrite {
		room.lastWrittenAt = now
	}
	room.mu.Unlock()

	if needRead {
		s.reconcileRead(ctx, room)
	}
	if needWrite {
		s.reconcileWrite(ctx, room)
	}
}

// reconcileRead merges the durable blob into the in-memory document and
// adopts the stored version as the local baseline. This is how updates
// written by other instances reach this one.
func (s *Service) reconcileRead(ctx context.Context, room *Room) {
	record, err := s.store.ReadRoom(ctx, room.ID)
	if err != nil {
		logger.Error("Reconcile read failed for room %s: %v", room.ID, err)
		return
	}

	// The persisted vector must describe the durable copy alone. Taking the
	// merged document's vector here would mark local updates as flushed and
	// the write cycle would skip them forever.
	durable := s.registry.engine.NewDoc()
	if err := durable.ApplyUpdate(record.Blob); err != nil {
		logger.Error("Durable blob for room %s did not apply cleanly: %v", room.ID, err)
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if err := room.doc.ApplyUpdate(record.Blob); err != nil {
		logger.Error("Durable blob for room %s did not apply cleanly: %v", room.ID, err)
		return
	}
	room.version = record.Version
	room.persistedVector = durable.StateVector()
}

// reconcileWrite flushes the document when it has diverged from the durable
// copy. A version mismatch means another instance wrote first: the cycle is
// skipped and the next read re-syncs the baseline. Transient store failures
// get a few jittered retries, then give up until the next cycle.
func (s *Service) reconcileWrite(ctx context.Context, room *Room) {
	room.mu.Lock()
	if !room.loaded {
		room.mu.Unlock()
		return
	}
	_, dirty := room.doc.DiffSince(room.persistedVector)
	if !dirty {
		room.mu.Unlock()
		return
	}
	blob := room.doc.EncodeSnapshot()
	vector := room.doc.StateVector()
	version := room.version
	room.mu.Unlock()

	var applied bool
	var err error
	for attempt := 0; attempt <= s.cfg.WriteRetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(writeBackoff(attempt))
		}
		applied, err = s.store.WriteRoom(ctx, room.ID, blob, version)
		if err == nil {
			break
		}
	}
	if err != nil {
		logger.Error("Giving up on durable write for room %s: %v", room.ID, err)
		return
	}
	if !applied {
		logger.Debug("Skipped stale write for room %s at version %d", room.ID, version)
		return
	}

	room.mu.Lock()
	room.version = version + 1
	room.persistedVector = vector
	room.mu.Unlock()
}

func writeBackoff(attempt int) time.Duration {
	base := 25 * time.Millisecond * time.Duration(attempt)
	return base + time.Duration(rand.Int63n(int64(25*time.Millisecond)))
}
