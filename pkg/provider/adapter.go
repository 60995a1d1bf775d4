// Package provider translates between provider-native representations and the
// canonical entity model. One adapter per streaming provider; orchestrators
// only ever see the Adapter interface, so adding a provider never touches
// them.
package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"tunebridge/internal/core"
)

// Adapter is the per-provider capability set: fetch by native ID, fetch by
// search query and the URL codec.
type Adapter interface {
	// Name returns the provider this adapter serves.
	Name() core.Provider

	// MatchesHost reports whether the adapter recognizes a URL hostname.
	MatchesHost(host string) bool

	// IDFromURL extracts the provider-native ID from a recognized URL.
	IDFromURL(rawURL string) (string, error)

	// TypeFromURL extracts the entity kind from a recognized URL.
	TypeFromURL(rawURL string) (core.EntityKind, error)

	// EntityURL builds the canonical provider URL for a native ID. It must
	// round-trip with IDFromURL.
	EntityURL(id string, kind core.EntityKind) (string, error)

	SongByID(ctx context.Context, id string) (*core.Song, error)
	AlbumByID(ctx context.Context, id string) (*core.Album, error)
	ArtistByID(ctx context.Context, id string) (*core.Artist, error)

	// The search variants are used only on conversion cache misses. The first
	// provider-ranked result is authoritative.
	SongBySearch(ctx context.Context, query string) (*core.Song, error)
	AlbumBySearch(ctx context.Context, query string) (*core.Album, error)
	ArtistBySearch(ctx context.Context, query string) (*core.Artist, error)
}

// Registry dispatches URLs and provider names to adapters.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry over the given adapters. Order matters only
// for URL dispatch when hosts overlap, which they do not for the built-in
// providers.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// ByName returns the adapter for a provider name.
func (r *Registry) ByName(name core.Provider) (Adapter, error) {
	for _, a := range r.adapters {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedProvider, name)
}

// ByURL returns the adapter whose host patterns match the URL.
func (r *Registry) ByURL(rawURL string) (Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnsupportedURL, err)
	}

	host := strings.ToLower(u.Hostname())
	for _, a := range r.adapters {
		if a.MatchesHost(host) {
			return a, nil
		}
	}

	return nil, fmt.Errorf("%w: no adapter for host %q", core.ErrUnsupportedProvider, host)
}

// Providers lists the registered provider names.
func (r *Registry) Providers() []core.Provider {
	out := make([]core.Provider, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Name())
	}
	return out
}
