// v2
// internal/journal/journal.go
package journal

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vmcpilot/engine/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Cycle outcomes recorded in the journal.
const (
	OutcomeApplied  = "APPLIED"
	OutcomeRejected = "REJECTED"
	OutcomeFailed   = "FAILED"
)

// Entry is one decision cycle appended to the journal. Entries form a hash
// chain: each one carries the hash of its predecessor, so tampering with a
// past decision breaks every hash after it.
type Entry struct {
	ID          int64               `json:"id"`
	CycleID     string              `json:"cycleId"`
	UnitID      string              `json:"unitId"`
	At          time.Time           `json:"at"`
	Outcome     string              `json:"outcome"`
	Season      domain.Season       `json:"season,omitempty"`
	Actions     *domain.ActionSet   `json:"actions,omitempty"`
	Corrections []domain.Correction `json:"corrections,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	SnapshotRef string              `json:"snapshotRef,omitempty"`
	PrevHash    string              `json:"prevHash"`
	Hash        string              `json:"hash"`
}

func (e *Entry) ComputeHash() (string, error) {
	tmp := struct {
		ID          int64               `json:"id"`
		CycleID     string              `json:"cycleId"`
		UnitID      string              `json:"unitId"`
		At          time.Time           `json:"at"`
		Outcome     string              `json:"outcome"`
		Season      domain.Season       `json:"season,omitempty"`
		Actions     *domain.ActionSet   `json:"actions,omitempty"`
		Corrections []domain.Correction `json:"corrections,omitempty"`
		Reason      string              `json:"reason,omitempty"`
		SnapshotRef string              `json:"snapshotRef,omitempty"`
		PrevHash    string              `json:"prevHash"`
	}{e.ID, e.CycleID, e.UnitID, e.At.UTC(), e.Outcome, e.Season, e.Actions, e.Corrections, e.Reason, e.SnapshotRef, e.PrevHash}
	b, err := json.Marshal(tmp)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:]), nil
}

// SnapshotRef digests the snapshot a decision was computed from, so the
// journal can reference the input without storing every reading twice.
func SnapshotRef(snap domain.Snapshot) (string, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:]), nil
}

// Journal is an append-only JSONL file of decision entries. On open it
// replays the whole file and refuses to start over a broken chain.
type Journal struct {
	mu       sync.RWMutex
	path     string
	log      *slog.Logger
	file     *os.File
	writer   *bufio.Writer
	lastID   int64
	lastHash string
	entries  []*Entry
}

func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	j := &Journal{path: path, log: logger, file: f, writer: bufio.NewWriter(f)}
	if err := j.load(); err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) load() error {
	j.log.Info("loading journal", slog.String("path", j.path))
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	j.entries = nil
	j.lastID = 0
	j.lastHash = ""
	scanner := bufio.NewScanner(j.file)
	var line int
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := j.validateChain(&e); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		e.At = e.At.UTC()
		stored := e
		j.entries = append(j.entries, &stored)
		if stored.ID > j.lastID {
			j.lastID = stored.ID
		}
		j.lastHash = stored.Hash
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	j.writer = bufio.NewWriter(j.file)
	j.log.Info("journal loaded", slog.Int("entries", len(j.entries)), slog.Int64("lastID", j.lastID))
	return nil
}

func (j *Journal) validateChain(e *Entry) error {
	if e == nil {
		return errors.New("nil entry")
	}
	if len(j.entries) == 0 {
		if e.PrevHash != "" {
			return fmt.Errorf("prevHash mismatch id=%d", e.ID)
		}
	} else if e.PrevHash != j.lastHash {
		return fmt.Errorf("prevHash mismatch id=%d", e.ID)
	}
	h, err := e.ComputeHash()
	if err != nil {
		return err
	}
	if h != e.Hash {
		return fmt.Errorf("hash mismatch id=%d", e.ID)
	}
	return nil
}

// Append seals the entry into the chain and persists it before returning.
func (j *Journal) Append(e *Entry) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e == nil {
		return nil, errors.New("entry must not be nil")
	}
	if e.UnitID == "" {
		return nil, errors.New("entry unit must not be empty")
	}
	j.lastID++
	e.ID = j.lastID
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	} else {
		e.At = e.At.UTC()
	}
	e.PrevHash = j.lastHash
	hash, err := e.ComputeHash()
	if err != nil {
		return nil, err
	}
	e.Hash = hash
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	if _, err := j.writer.Write(payload); err != nil {
		return nil, err
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return nil, err
	}
	if err := j.writer.Flush(); err != nil {
		return nil, err
	}
	if err := j.file.Sync(); err != nil {
		return nil, err
	}
	stored := *e
	j.lastHash = stored.Hash
	j.entries = append(j.entries, &stored)
	j.log.Info("journal appended",
		slog.Int64("id", stored.ID),
		slog.String("unit", stored.UnitID),
		slog.String("outcome", stored.Outcome))
	out := stored
	return &out, nil
}

// Tail returns up to n newest entries for the unit, oldest first. n <= 0
// means all of them.
func (j *Journal) Tail(unitID string, n int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var matched []Entry
	for _, e := range j.entries {
		if e.UnitID == unitID {
			matched = append(matched, *e)
		}
	}
	if n > 0 && len(matched) > n {
		matched = matched[len(matched)-n:]
	}
	return matched
}

// LastApplied returns the newest applied decision for the unit. The driver
// uses it on restart to recover the season it last commanded.
func (j *Journal) LastApplied(unitID string) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if e.UnitID == unitID && e.Outcome == OutcomeApplied {
			out := *e
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: no applied decision for %s", ErrNotFound, unitID)
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Verify re-reads the file from disk and walks the whole chain.
func (j *Journal) Verify() (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	f, err := os.Open(j.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var (
		prevHash string
		count    int
		line     int
	)
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		h, err := e.ComputeHash()
		if err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		if h != e.Hash {
			return count, fmt.Errorf("line %d: hash mismatch id=%d", line, e.ID)
		}
		if count == 0 {
			if e.PrevHash != "" {
				return count, fmt.Errorf("line %d: prevHash mismatch id=%d", line, e.ID)
			}
		} else if e.PrevHash != prevHash {
			return count, fmt.Errorf("line %d: prevHash mismatch id=%d", line, e.ID)
		}
		prevHash = e.Hash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	return count, nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Flush(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}
