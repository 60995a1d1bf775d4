// Package resolve turns inbound provider links into canonical entities.
package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tunebridge/internal/core"
	"tunebridge/internal/store"
	"tunebridge/pkg/provider"
)

// Resolver is the resolution orchestrator: it identifies the provider from a
// URL, extracts the native ID via the provider's URL codec and fetches the
// canonical entity. It is stateless; the memo only short-circuits repeated
// lookups for the same identifier within a seconds-scale window. Durable
// caching belongs to the conversion orchestrator.
type Resolver struct {
	registry *provider.Registry
	memo     *store.Memo
	logger   *zap.Logger
}

// New creates a resolver over the given adapter registry. memo may be nil to
// disable memoization.
func New(registry *provider.Registry, memo *store.Memo, logger *zap.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		memo:     memo,
		logger:   logger,
	}
}

// ResolveURL resolves a provider link into a canonical entity. Failures are
// terminal; no retry happens at this layer.
func (r *Resolver) ResolveURL(ctx context.Context, rawURL string) (*core.ResolvedLink, error) {
	adapter, err := r.registry.ByURL(rawURL)
	if err != nil {
		return nil, err
	}

	kind, err := adapter.TypeFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	id, err := adapter.IDFromURL(rawURL)
	if err != nil {
		return nil, err
	}

	key := store.MemoKey{
		IdentifierType: string(adapter.Name()),
		Identifier:     id,
		ResourceType:   kind,
	}
	if r.memo != nil {
		if entity, ok := r.memo.Get(key); ok {
			return &core.ResolvedLink{Kind: kind, Provider: adapter.Name(), Entity: entity}, nil
		}
	}

	entity, err := r.fetch(ctx, adapter, kind, id)
	if err != nil {
		return nil, err
	}

	if r.memo != nil {
		r.memo.Add(key, entity)
	}

	r.logger.Debug("resolved link",
		zap.String("provider", string(adapter.Name())),
		zap.String("kind", string(kind)),
		zap.String("syncId", entity.ID()))

	return &core.ResolvedLink{Kind: kind, Provider: adapter.Name(), Entity: entity}, nil
}

func (r *Resolver) fetch(ctx context.Context, adapter provider.Adapter, kind core.EntityKind, id string) (core.Entity, error) {
	switch kind {
	case core.KindSong:
		return adapter.SongByID(ctx, id)
	case core.KindAlbum:
		return adapter.AlbumByID(ctx, id)
	case core.KindArtist:
		return adapter.ArtistByID(ctx, id)
	}
	return nil, fmt.Errorf("%w: cannot resolve entities of kind %q", core.ErrUnsupportedURL, kind)
}
