// v1
// internal/history/store.go
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"vmcpilot/engine/internal/domain"
)

// ErrUnavailable is returned when no snapshot can serve the request.
var ErrUnavailable = errors.New("historian unavailable")

// ErrPartialData is returned when the freshest telemetry for the unit was
// incomplete. Missing components are reported, never defaulted.
var ErrPartialData = errors.New("historian snapshot incomplete")

// Historian is the engine's read port for unit state at a point in time.
type Historian interface {
	GetSnapshot(ctx context.Context, unitID string, asOf time.Time) (domain.Snapshot, error)
}

// Store keeps a rolling per-unit window of complete snapshots fed by the
// telemetry intake. It is safe for concurrent use and implements Historian.
type Store struct {
	mu         sync.RWMutex
	maxSamples int
	maxAge     time.Duration
	units      map[string][]domain.Snapshot
	partialAt  map[string]time.Time
	log        *slog.Logger
}

// NewStore builds a history store bounded by sample count and age. A nil
// logger falls back to a discard handler.
func NewStore(maxSamples int, maxAge time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if maxSamples < 1 {
		maxSamples = 1
	}
	return &Store{
		maxSamples: maxSamples,
		maxAge:     maxAge,
		units:      make(map[string][]domain.Snapshot),
		partialAt:  make(map[string]time.Time),
		log:        logger,
	}
}

// Append records a complete snapshot and clears any partial marker strictly
// older than it. A marker at the exact same instant stays: only a newer
// complete reading proves the gap is over. Snapshots must arrive in
// non-decreasing time order per unit; stragglers are dropped with a warning
// rather than reordering the window.
func (s *Store) Append(snap domain.Snapshot) {
	if snap.UnitID == "" {
		s.log.Warn("snapshot without unitId dropped")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.units[snap.UnitID]
	if n := len(window); n > 0 && snap.TakenAt.Before(window[n-1].TakenAt) {
		s.log.Warn("out of order snapshot dropped",
			slog.String("unit", snap.UnitID),
			slog.Time("takenAt", snap.TakenAt),
			slog.Time("newest", window[n-1].TakenAt))
		return
	}
	window = append(window, snap)
	if s.maxAge > 0 {
		cutoff := snap.TakenAt.Add(-s.maxAge)
		trim := 0
		for trim < len(window) && window[trim].TakenAt.Before(cutoff) {
			trim++
		}
		window = window[trim:]
	}
	if len(window) > s.maxSamples {
		window = window[len(window)-s.maxSamples:]
	}
	s.units[snap.UnitID] = window
	if at, ok := s.partialAt[snap.UnitID]; ok && at.Before(snap.TakenAt) {
		delete(s.partialAt, snap.UnitID)
	}
}

// NotePartial records that the freshest telemetry for the unit arrived with
// missing components, so reads fail with ErrPartialData until a complete
// snapshot supersedes it.
func (s *Store) NotePartial(unitID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.partialAt[unitID]; !ok || at.After(prev) {
		s.partialAt[unitID] = at
	}
}

// GetSnapshot returns the newest complete snapshot taken at or before asOf.
// A partial mark at or after that snapshot (and within asOf) fails the read
// with ErrPartialData until a strictly newer complete reading supersedes it.
func (s *Store) GetSnapshot(_ context.Context, unitID string, asOf time.Time) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window := s.units[unitID]
	var best *domain.Snapshot
	for i := len(window) - 1; i >= 0; i-- {
		if !window[i].TakenAt.After(asOf) {
			best = &window[i]
			break
		}
	}
	if best == nil {
		return domain.Snapshot{}, fmt.Errorf("%w: unit %s", ErrUnavailable, unitID)
	}
	if at, ok := s.partialAt[unitID]; ok && !at.Before(best.TakenAt) && !at.After(asOf) {
		return domain.Snapshot{}, fmt.Errorf("%w: unit %s at %s", ErrPartialData, unitID, at.UTC().Format(time.RFC3339))
	}
	return *best, nil
}

// History returns up to n most recent snapshots for the unit in ascending
// time order. Callers receive their own slice.
func (s *Store) History(unitID string, n int) []domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window := s.units[unitID]
	if n <= 0 || n > len(window) {
		n = len(window)
	}
	out := make([]domain.Snapshot, n)
	copy(out, window[len(window)-n:])
	return out
}

// Len reports how many snapshots the unit currently has in window.
func (s *Store) Len(unitID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units[unitID])
}
