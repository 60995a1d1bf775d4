// Package convert is the cache-aside conversion orchestrator: given a
// canonical entity and a target provider it returns a provider-complete
// version, using the store as a cache, a provider search as the miss path and
// a poll-with-backoff fallback to recover from races with concurrent
// converters.
package convert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tunebridge/internal/core"
	"tunebridge/internal/store"
	"tunebridge/pkg/identity"
	"tunebridge/pkg/provider"
)

// Recorder receives conversion telemetry. All methods must be safe for
// concurrent use.
type Recorder interface {
	RecordCacheHit(kind string)
	RecordProviderCall(providerName, status string)
	RecordPollRecovery()
}

// Converter owns conversion and race recovery. There is no entity-level lock:
// concurrent converters for the same sync ID converge through the store's
// additive merge, and duplicate provider searches are accepted.
type Converter struct {
	registry *provider.Registry
	store    *store.Store
	cfg      core.ConvertConfig
	recorder Recorder
	logger   *zap.Logger
}

// New creates a converter. recorder may be nil.
func New(registry *provider.Registry, st *store.Store, cfg core.ConvertConfig, recorder Recorder, logger *zap.Logger) *Converter {
	return &Converter{
		registry: registry,
		store:    st,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
	}
}

// Convert returns a version of the entity complete for the target provider.
func (c *Converter) Convert(ctx context.Context, entity core.Entity, target core.Provider) (core.Entity, error) {
	adapter, err := c.registry.ByName(target)
	if err != nil {
		return nil, err
	}

	// Fast path: the stored row already knows the target provider.
	stored, err := c.store.GetEntity(ctx, entity.Kind(), entity.ID())
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.ExternalIDMap()[target] != "" {
		c.recordCacheHit(entity.Kind())
		return stored, nil
	}

	// On a complete miss, read once more before paying for a provider call:
	// another in-flight converter may have just finished.
	if stored == nil {
		again, err := c.store.GetEntity(ctx, entity.Kind(), entity.ID())
		if err != nil {
			return nil, err
		}
		if again != nil {
			c.recordCacheHit(entity.Kind())
			return again, nil
		}
	}

	converted, fetchErr := c.search(ctx, adapter, entity)
	if fetchErr != nil {
		c.recordProviderCall(target, "error")
		c.logger.Debug("target provider search failed, polling store",
			zap.String("target", string(target)),
			zap.String("syncId", entity.ID()),
			zap.Error(fetchErr))
		return c.pollStore(ctx, entity, fetchErr)
	}
	c.recordProviderCall(target, "ok")

	// Fold the freshly found target ID into a copy of the source entity
	// before the upsert so the stored row accumulates both providers. The
	// caller's entity is never mutated.
	folded := withExternalID(entity, target, converted.ExternalIDMap()[target])

	mergedRow, err := c.store.UpsertEntity(ctx, folded)
	if err != nil {
		return nil, err
	}

	// Target-provider fields are the base; persisted fields win.
	return overlay(converted, mergedRow), nil
}

// EntityURL builds the outbound link for an already-converted entity. A
// missing external ID is a hard error; callers are expected to convert first.
func (c *Converter) EntityURL(entity core.Entity, target core.Provider) (string, error) {
	id, ok := entity.ExternalIDMap()[target]
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %q", core.ErrMissingExternalID, target)
	}

	adapter, err := c.registry.ByName(target)
	if err != nil {
		return "", err
	}
	return adapter.EntityURL(id, entity.Kind())
}

// search queries the target provider with the normalized form of the source
// entity, never its raw fields.
func (c *Converter) search(ctx context.Context, adapter provider.Adapter, entity core.Entity) (core.Entity, error) {
	switch e := entity.(type) {
	case *core.Song:
		return adapter.SongBySearch(ctx, identity.Normalize(e.Title, e.Artists).SearchQuery())
	case *core.Album:
		return adapter.AlbumBySearch(ctx, identity.Normalize(e.Title, e.Artists).SearchQuery())
	case *core.Artist:
		return adapter.ArtistBySearch(ctx, identity.Normalize(e.Name, nil).SearchQuery())
	}
	return nil, fmt.Errorf("cannot convert entity of kind %q", entity.Kind())
}

// pollStore re-reads the store with geometrically increasing delays, hoping a
// concurrent converter lands its row. It never re-calls the provider. The
// loop is bounded both by attempt count and by wall clock.
func (c *Converter) pollStore(ctx context.Context, entity core.Entity, fetchErr error) (core.Entity, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollMaxWait)
	defer cancel()

	delay := c.cfg.PollInitialDelay
	for attempt := 0; attempt < c.cfg.PollAttempts; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return nil, fetchErr
		case <-timer.C:
		}

		row, err := c.store.GetEntity(pollCtx, entity.Kind(), entity.ID())
		if err != nil {
			return nil, err
		}
		if row != nil {
			if c.recorder != nil {
				c.recorder.RecordPollRecovery()
			}
			c.logger.Debug("recovered conversion from concurrent writer",
				zap.String("syncId", entity.ID()),
				zap.Int("attempt", attempt+1))
			return row, nil
		}

		delay = time.Duration(float64(delay) * c.cfg.PollBackoff)
	}

	return nil, fetchErr
}

func (c *Converter) recordCacheHit(kind core.EntityKind) {
	if c.recorder != nil {
		c.recorder.RecordCacheHit(string(kind))
	}
}

func (c *Converter) recordProviderCall(target core.Provider, status string) {
	if c.recorder != nil {
		c.recorder.RecordProviderCall(string(target), status)
	}
}

// withExternalID returns a shallow copy of the entity whose external ID map
// additionally carries the target provider's slot. The original entity and its
// map are left untouched.
func withExternalID(entity core.Entity, target core.Provider, id string) core.Entity {
	switch e := entity.(type) {
	case *core.Song:
		clone := *e
		clone.ExternalIDs = e.ExternalIDs.Clone()
		if id != "" {
			clone.ExternalIDs[target] = id
		}
		return &clone
	case *core.Album:
		clone := *e
		clone.ExternalIDs = e.ExternalIDs.Clone()
		if id != "" {
			clone.ExternalIDs[target] = id
		}
		return &clone
	case *core.Artist:
		clone := *e
		clone.ExternalIDs = e.ExternalIDs.Clone()
		if id != "" {
			clone.ExternalIDs[target] = id
		}
		return &clone
	}
	return entity
}

// overlay layers the persisted row over the converted entity: stored scalars
// win once set, lists union and external ID maps merge with stored entries
// taking precedence.
func overlay(converted, storedRow core.Entity) core.Entity {
	switch conv := converted.(type) {
	case *core.Song:
		if row, ok := storedRow.(*core.Song); ok {
			merged := store.MergeSongs(row, conv)
			return &merged
		}
	case *core.Album:
		if row, ok := storedRow.(*core.Album); ok {
			merged := store.MergeAlbums(row, conv)
			return &merged
		}
	case *core.Artist:
		if row, ok := storedRow.(*core.Artist); ok {
			merged := store.MergeArtists(row, conv)
			return &merged
		}
	}
	return storedRow
}
