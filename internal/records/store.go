// Package records manages the in-memory binding between connected players and
// their persisted records. All progression mutations flow through here so the
// energyPerSecond invariant and the non-negative energy rule hold after every
// operation.
package records

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sdxqw/energy-clicker/internal/domain/player"
	"github.com/sdxqw/energy-clicker/internal/domain/rules"
	"github.com/sdxqw/energy-clicker/internal/infra/storage"
	"github.com/sdxqw/energy-clicker/internal/platform/logger"
	"github.com/sdxqw/energy-clicker/internal/platform/metrics"
)

// RecordKey derives the storage key for a player identifier.
func RecordKey(playerID string) string {
	return "Player_" + playerID
}

// binding tracks one player's loaded document and its lifecycle flags.
type binding struct {
	doc       storage.Document
	pending   bool          // load in flight, doc not yet set
	abandoned bool          // player left before the load finished
	saving    bool          // flush in flight
	saveDone  chan struct{} // closed when the in-flight flush completes
	released  chan struct{} // closed when a pending binding is removed
}

// BindResult reports what Bind credited on load.
type BindResult struct {
	OfflineEnergy float64 // energy credited for the offline window
	OfflineHours  float64 // creditable offline hours, clamped at MaxHours
}

// Store is the player record store. At most one binding exists per player.
type Store struct {
	collection storage.Collection
	logger     *logger.Logger
	baseRate   float64
	offline    rules.OfflineParams

	mu       sync.Mutex
	bindings map[string]*binding
}

// NewStore creates a record store over the given document collection.
func NewStore(collection storage.Collection, log *logger.Logger, baseRate float64, offline rules.OfflineParams) *Store {
	return &Store{
		collection: collection,
		logger:     log,
		baseRate:   baseRate,
		offline:    offline,
		bindings:   make(map[string]*binding),
	}
}

// Bind loads the player's record and credits offline earnings since the last
// save. lastSaveTime is deliberately NOT stamped here; that happens on the
// next flush. The bool reports whether the player ended up bound: if the
// player left while the load was in flight the record is persisted and
// discarded instead. A bind that arrives while the previous session's
// abandoned load is still in flight waits for its persist-and-discard and
// then proceeds.
func (s *Store) Bind(ctx context.Context, playerID string) (BindResult, bool, error) {
	s.mu.Lock()
	for {
		existing, ok := s.bindings[playerID]
		if !ok {
			break
		}
		if existing.pending && existing.abandoned {
			released := existing.released
			s.mu.Unlock()
			<-released
			s.mu.Lock()
			continue
		}
		s.mu.Unlock()
		return BindResult{}, false, fmt.Errorf("player %s is already bound", playerID)
	}
	b := &binding{pending: true, released: make(chan struct{})}
	s.bindings[playerID] = b
	s.mu.Unlock()

	doc, err := s.collection.Load(ctx, RecordKey(playerID))
	if err != nil {
		s.mu.Lock()
		delete(s.bindings, playerID)
		s.mu.Unlock()
		close(b.released)
		metrics.Get().RecordLoadError()
		return BindResult{}, false, fmt.Errorf("failed to load record for %s: %w", playerID, err)
	}

	rec := doc.Read()
	elapsed := time.Since(rec.LastSaveTime)
	res := BindResult{
		OfflineEnergy: rules.OfflineEarnings(elapsed, rec.Multiplier, s.offline),
		OfflineHours:  rules.OfflineWindow(elapsed, s.offline),
	}
	rec.Energy += res.OfflineEnergy
	rec.EnergyPerSecond = s.baseRate * rec.Multiplier
	doc.Write(rec)

	s.mu.Lock()
	if b.abandoned {
		delete(s.bindings, playerID)
		s.mu.Unlock()

		// The player disconnected mid-load: persist and discard. This is
		// the session's final save, so the stamp is applied; otherwise the
		// credited offline window would be credited again on the next bind.
		rec.LastSaveTime = time.Now()
		doc.Write(rec)
		if saveErr := doc.Save(ctx); saveErr != nil {
			s.logger.Error("Failed to persist abandoned load for " + playerID + ": " + saveErr.Error())
		}
		doc.Close()
		close(b.released)
		return BindResult{}, false, nil
	}
	b.doc = doc
	b.pending = false
	s.mu.Unlock()

	if res.OfflineEnergy > 0 {
		metrics.Get().RecordOfflineEnergy(res.OfflineEnergy)
	}
	return res, true, nil
}

// GetRecord returns the current in-memory record, absent if not bound.
func (s *Store) GetRecord(playerID string) (player.Record, bool) {
	doc, ok := s.document(playerID)
	if !ok {
		return player.Record{}, false
	}
	return toDomain(doc.Read()), true
}

// AddEnergy credits energy to a bound player. Fractional amounts are allowed
// for passive accrual. No-op when unbound.
func (s *Store) AddEnergy(playerID string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[playerID]
	if !ok || b.doc == nil {
		return
	}
	rec := b.doc.Read()
	rec.Energy += amount
	b.doc.Write(rec)
}

// TrySpendEnergy atomically checks and deducts energy. Returns false with no
// mutation when the balance is insufficient or the player is unbound.
func (s *Store) TrySpendEnergy(playerID string, amount float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[playerID]
	if !ok || b.doc == nil {
		return false
	}
	rec := b.doc.Read()
	if rec.Energy < amount {
		return false
	}
	rec.Energy -= amount
	b.doc.Write(rec)
	return true
}

// UpgradeMultiplier increments the multiplier and recomputes energyPerSecond.
func (s *Store) UpgradeMultiplier(playerID string, increase float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bindings[playerID]
	if !ok || b.doc == nil {
		return
	}
	rec := b.doc.Read()
	rec.Multiplier += increase
	rec.EnergyPerSecond = s.baseRate * rec.Multiplier
	b.doc.Write(rec)
}

// Flush stamps lastSaveTime and persists the record. Non-reentrant per
// player: a flush is skipped while another is in flight for the same player.
// On failure the binding stays intact so the next cycle retries.
func (s *Store) Flush(ctx context.Context, playerID string) error {
	s.mu.Lock()
	b, ok := s.bindings[playerID]
	if !ok || b.doc == nil || b.saving {
		s.mu.Unlock()
		return nil
	}
	b.saving = true
	b.saveDone = make(chan struct{})
	done := b.saveDone
	doc := b.doc
	rec := doc.Read()
	rec.LastSaveTime = time.Now()
	doc.Write(rec)
	s.mu.Unlock()

	start := time.Now()
	err := doc.Save(ctx)
	metrics.Get().RecordSave(time.Since(start), err)

	s.mu.Lock()
	b.saving = false
	s.mu.Unlock()
	close(done)

	if err != nil {
		s.logger.Error("Failed to save record for " + playerID + ": " + err.Error())
		return fmt.Errorf("failed to save record for %s: %w", playerID, err)
	}
	return nil
}

// Unbind flushes, closes and releases the player's binding. If the load is
// still in flight the binding is marked abandoned and Bind finishes the
// persist-and-discard. If a flush is in flight Unbind waits for it, then
// performs the final stamped save so nothing mutated after the flush
// snapshot is lost.
func (s *Store) Unbind(ctx context.Context, playerID string) {
	s.mu.Lock()
	b, ok := s.bindings[playerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if b.pending {
		b.abandoned = true
		s.mu.Unlock()
		return
	}
	delete(s.bindings, playerID)
	doc := b.doc
	var inFlight chan struct{}
	if b.saving {
		inFlight = b.saveDone
	}
	s.mu.Unlock()

	if inFlight != nil {
		<-inFlight
	}

	rec := doc.Read()
	rec.LastSaveTime = time.Now()
	doc.Write(rec)

	start := time.Now()
	err := doc.Save(ctx)
	metrics.Get().RecordSave(time.Since(start), err)
	if err != nil {
		s.logger.Error("Failed to save record on unbind for " + playerID + ": " + err.Error())
	}
	doc.Close()
}

// FlushAll flushes every bound player. One player's save failure never stops
// the rest; Flush logs failures itself.
func (s *Store) FlushAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.bindings))
	for id := range s.bindings {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Flush(ctx, id)
	}
}

// BoundCount returns the number of active bindings.
func (s *Store) BoundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bindings)
}

func (s *Store) document(playerID string) (storage.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[playerID]
	if !ok || b.doc == nil {
		return nil, false
	}
	return b.doc, true
}

func toDomain(rec storage.PlayerRecord) player.Record {
	return player.Record{
		Energy:          rec.Energy,
		Multiplier:      rec.Multiplier,
		EnergyPerSecond: rec.EnergyPerSecond,
		LastSaveTime:    rec.LastSaveTime,
	}
}
