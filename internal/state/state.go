// Package state persists per-workflow run timestamps and seen observation ids.
package state

import (
	"encoding/json"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tkoskela/inatwatch/internal/errors"
	"github.com/tkoskela/inatwatch/internal/logging"
)

// Package-level logger specific to the state service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelDebug)

	logger, _, err = logging.NewFileLogger("logs/state.log", "state", serviceLevelVar)
	if err != nil || logger == nil {
		logger = logging.NewDiscardLogger("state", serviceLevelVar)
	}
}

// WorkflowKind identifies which workflow owns a piece of state.
type WorkflowKind string

const (
	KindDigest WorkflowKind = "digest"
	KindAlert  WorkflowKind = "alert"
)

// State is the persisted workflow state. Map keys are decimal observation
// ids, values the UTC instant the id was marked processed.
type State struct {
	LastDigestRun        *time.Time           `json:"last_digest_run"`
	LastAlertRun         *time.Time           `json:"last_alert_run"`
	DigestObservationIDs map[string]time.Time `json:"digest_observation_ids"`
	AlertObservationIDs  map[string]time.Time `json:"alert_observation_ids"`
}

// Default returns an empty first-run state.
func Default() State {
	return State{
		DigestObservationIDs: map[string]time.Time{},
		AlertObservationIDs:  map[string]time.Time{},
	}
}

// LastRun returns the last run instant for the workflow kind, nil on first run.
func (s State) LastRun(kind WorkflowKind) *time.Time {
	if kind == KindAlert {
		return s.LastAlertRun
	}
	return s.LastDigestRun
}

// seenIDs returns the processed-id mapping for the workflow kind.
func (s State) seenIDs(kind WorkflowKind) map[string]time.Time {
	if kind == KindAlert {
		return s.AlertObservationIDs
	}
	return s.DigestObservationIDs
}

// IsSeen reports whether the observation id was already processed by the
// workflow kind.
func IsSeen(s State, kind WorkflowKind, id int64) bool {
	_, seen := s.seenIDs(kind)[strconv.FormatInt(id, 10)]
	return seen
}

// MarkSeen returns a new state with the observation id recorded as processed
// at the given instant. The input state is never mutated, keeping state
// transitions explicit in the orchestrator.
func MarkSeen(s State, kind WorkflowKind, id int64, ts time.Time) State {
	updated := cloneIDs(s.seenIDs(kind))
	updated[strconv.FormatInt(id, 10)] = ts.UTC()

	if kind == KindAlert {
		s.AlertObservationIDs = updated
	} else {
		s.DigestObservationIDs = updated
	}
	return s
}

// WithLastRun returns a new state with the last run instant set for the
// workflow kind.
func WithLastRun(s State, kind WorkflowKind, ts time.Time) State {
	utc := ts.UTC()
	if kind == KindAlert {
		s.LastAlertRun = &utc
	} else {
		s.LastDigestRun = &utc
	}
	return s
}

func cloneIDs(ids map[string]time.Time) map[string]time.Time {
	cloned := make(map[string]time.Time, len(ids)+1)
	maps.Copy(cloned, ids)
	return cloned
}

// Store reads and writes the state file.
type Store struct {
	path      string
	retention time.Duration

	// now is swappable for pruning tests
	now func() time.Time
}

// NewStore creates a store for the given path with the retention horizon
// applied on every save.
func NewStore(path string, retentionDays int) *Store {
	return &Store{
		path:      path,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Load returns the persisted state. An absent or corrupt file is treated as
// a first run and yields the default empty state, never an error.
func (s *Store) Load() State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("state file unreadable, starting from empty state",
				"path", s.path,
				"error", err.Error())
		}
		return Default()
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Warn("state file corrupt, starting from empty state",
			"path", s.path,
			"error", err.Error())
		return Default()
	}

	if loaded.DigestObservationIDs == nil {
		loaded.DigestObservationIDs = map[string]time.Time{}
	}
	if loaded.AlertObservationIDs == nil {
		loaded.AlertObservationIDs = map[string]time.Time{}
	}

	logger.Debug("state loaded",
		"path", s.path,
		"digest_ids", len(loaded.DigestObservationIDs),
		"alert_ids", len(loaded.AlertObservationIDs))

	return loaded
}

// Save prunes entries past the retention horizon and writes the state file
// atomically. A failed write is fatal for the invocation; the caller does
// not retry, the next scheduled run covers the same window again.
func (s *Store) Save(state State) error {
	pruned := s.Prune(state)

	data, err := json.MarshalIndent(pruned, "", "  ")
	if err != nil {
		return errors.Newf("failed to encode state: %w", err).
			Category(errors.CategoryState).
			Component("state").
			Build()
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".inatwatch-state-*")
	if err != nil {
		return errors.Newf("failed to create temp state file: %w", err).
			Category(errors.CategoryFileIO).
			Component("state").
			Context("path", s.path).
			Build()
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Newf("failed to write state: %w", err).
			Category(errors.CategoryFileIO).
			Component("state").
			Context("path", s.path).
			Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Newf("failed to close temp state file: %w", err).
			Category(errors.CategoryFileIO).
			Component("state").
			Context("path", s.path).
			Build()
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Newf("failed to replace state file: %w", err).
			Category(errors.CategoryFileIO).
			Component("state").
			Context("path", s.path).
			Build()
	}

	logger.Debug("state saved",
		"path", s.path,
		"digest_ids", len(pruned.DigestObservationIDs),
		"alert_ids", len(pruned.AlertObservationIDs))

	return nil
}

// Prune returns a state copy with processed-id entries older than the
// retention horizon dropped for both workflow kinds. Runs on every save
// regardless of which workflow triggered it.
func (s *Store) Prune(state State) State {
	cutoff := s.now().UTC().Add(-s.retention)

	state.DigestObservationIDs = pruneIDs(state.DigestObservationIDs, cutoff)
	state.AlertObservationIDs = pruneIDs(state.AlertObservationIDs, cutoff)
	return state
}

// pruneIDs keeps entries at or after the cutoff. An entry exactly at the
// horizon is retained.
func pruneIDs(ids map[string]time.Time, cutoff time.Time) map[string]time.Time {
	kept := make(map[string]time.Time, len(ids))
	for id, ts := range ids {
		if ts.Before(cutoff) {
			continue
		}
		kept[id] = ts
	}
	return kept
}
