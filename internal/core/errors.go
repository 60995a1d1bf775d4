package core

import "errors"

// Engine error taxonomy. Handlers map these to HTTP status codes; everything
// else is treated as an internal failure.
var (
	// ErrUnsupportedProvider is returned when a URL matches no known provider.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrUnsupportedURL is returned when a provider recognizes the host but
	// cannot extract an entity type or ID from the URL.
	ErrUnsupportedURL = errors.New("unsupported url")

	// ErrNotFound is returned when a provider search or lookup yields no
	// result, and by the store for missing rows surfaced to callers.
	ErrNotFound = errors.New("not found")

	// ErrMissingExternalID is returned by URL construction when the entity has
	// no external ID for the requested provider. Callers are expected to run a
	// conversion first.
	ErrMissingExternalID = errors.New("external id for provider not found")

	// ErrRateLimited is returned by the admission boundary when a request
	// identity has exhausted its hourly quota.
	ErrRateLimited = errors.New("rate limited")
)
