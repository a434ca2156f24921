package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/shared"
)

// DefaultKey is the key the watermark is stored under.
const DefaultKey = "last-update"

// Backend is the durable tier. A missing key returns [shared.ErrCheckpointNotFound].
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store is the logical checkpoint: one durable tier plus one local tier for a single key.
//
// Values are unix milliseconds encoded as decimal strings.
type Store struct {
	durable Backend
	local   *LocalCache
	key     string
	logger  *log.Logger
	now     func() time.Time
}

// NewStore creates a Store. An empty key uses [DefaultKey]; a nil local cache gets a fresh one.
func NewStore(durable Backend, local *LocalCache, key string, logger *log.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if local == nil {
		local = NewLocalCache()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Store{durable: durable, local: local, key: key, logger: logger, now: time.Now}
}

// Key returns the key the store manages.
func (s *Store) Key() string {
	return s.key
}

// Get reads the durable watermark, falling back to the local tier when the durable read fails.
func (s *Store) Get(ctx context.Context) (time.Time, error) {
	raw, err := s.durable.Get(ctx, s.key)
	switch {
	case errors.Is(err, shared.ErrCheckpointNotFound):
		return time.Time{}, err
	case err != nil:
		s.logger.Warn("checkpoint_get", "reason", "durable tier unavailable, using local", "err", err)
		local, ok := s.local.Get(s.key)
		if !ok {
			return time.Time{}, err
		}
		raw = local
	}

	ts, ok := decode(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s=%q", shared.ErrCheckpointNotFound, s.key, raw)
	}
	return ts, nil
}

// Set mirrors ts into the local tier and then writes the durable tier.
//
// When the durable write fails the local value survives and is used by the
// next [Store.Resolve] to repair the durable tier.
func (s *Store) Set(ctx context.Context, ts time.Time) error {
	value := encode(ts)
	s.local.Set(s.key, value)
	if err := s.durable.Set(ctx, s.key, value); err != nil {
		return err
	}
	return nil
}

// Transient returns the local-tier value, if any.
func (s *Store) Transient() *time.Time {
	raw, ok := s.local.Get(s.key)
	if !ok {
		return nil
	}
	ts, ok := decode(raw)
	if !ok {
		return nil
	}
	return &ts
}

// ClearTransient drops the local-tier value.
func (s *Store) ClearTransient() {
	s.local.Delete(s.key)
}

// Resolve computes the window start for a run.
//
//  1. No durable value: use now, persist it and report a first run.
//  2. Local value newer than durable: write it durably, clear it and report a repair.
func (s *Store) Resolve(ctx context.Context) (models.Checkpoint, error) {
	durable, err := s.Get(ctx)
	if errors.Is(err, shared.ErrCheckpointNotFound) {
		now := s.now().Truncate(time.Millisecond)
		if err := s.Set(ctx, now); err != nil {
			return models.Checkpoint{}, fmt.Errorf("failed to initialize checkpoint: %w", err)
		}
		s.logger.Info("checkpoint_first_run", "durable", now)
		return models.Checkpoint{Durable: now, FirstRun: true}, nil
	}
	if err != nil {
		return models.Checkpoint{}, err
	}

	transient := s.Transient()
	if transient == nil || !transient.After(durable) {
		return models.Checkpoint{Durable: durable, Transient: transient}, nil
	}

	s.logger.Info("checkpoint_repair", "durable", durable, "transient", *transient)
	if err := s.durable.Set(ctx, s.key, encode(*transient)); err != nil {
		return models.Checkpoint{}, fmt.Errorf("failed to repair checkpoint: %w", err)
	}
	s.ClearTransient()
	return models.Checkpoint{Durable: *transient, Repaired: true}, nil
}

// Commit advances the watermark to observed if it is newer than the current durable value.
//
// It returns whether a write happened. The watermark never moves backwards.
func (s *Store) Commit(ctx context.Context, observed time.Time) (bool, error) {
	if observed.IsZero() {
		return false, nil
	}

	current, err := s.Get(ctx)
	switch {
	case err == nil:
		if !observed.After(current) {
			s.logger.Debug("checkpoint_commit", "reason", "not newer than durable", "observed", observed, "durable", current)
			return false, nil
		}
	case errors.Is(err, shared.ErrCheckpointNotFound):
	default:
		s.logger.Warn("checkpoint_commit", "reason", "current value unreadable", "err", err)
	}

	if err := s.Set(ctx, observed); err != nil {
		return false, fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	s.logger.Info("checkpoint_commit", "durable", observed)
	return true, nil
}

// Clear removes the watermark from both tiers.
func (s *Store) Clear(ctx context.Context) error {
	s.ClearTransient()
	return s.durable.Delete(ctx, s.key)
}

func encode(ts time.Time) string {
	return strconv.FormatInt(ts.UnixMilli(), 10)
}

// decode treats empty, zero and malformed values as absent.
func decode(raw string) (time.Time, bool) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
