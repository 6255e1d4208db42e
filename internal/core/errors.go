package core

import "errors"

// Error kinds shared across adapters. Callers branch with errors.Is; adapters
// wrap backend errors around these sentinels so the engine and the HTTP layer
// never see backend-native error types.
var (
	// ErrNotFound: a catalog document or collection is absent. Reads swallow
	// this with a warning; writes under CreateIfNeeded create the collection.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the backend rejected a write for a non-transient reason
	// (e.g. recreating a collection with different dimensions).
	ErrConflict = errors.New("conflict")

	// ErrBackend: transient backend failure, retried with backoff.
	ErrBackend = errors.New("backend error")

	// ErrUnsupported: the selected backend cannot realize a capability
	// (e.g. scroll pagination on the managed service).
	ErrUnsupported = errors.New("unsupported operation")

	// ErrMalformedStream: a bus message whose stream attribute has no
	// "<datasourceId>_<configKey>" separator. Fatal for the message.
	ErrMalformedStream = errors.New("malformed stream attribute")

	// ErrDimensionMismatch: an embedding whose length differs from the
	// collection's dimensionality. Fatal for the message, never retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrMissingCredentials: a remote embedding model without usable
	// credentials in its config.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrModelUnknown: no embedding model resolvable for a message.
	ErrModelUnknown = errors.New("unknown embedding model")

	// ErrProviderError: an embedding provider call failed; retriable.
	ErrProviderError = errors.New("embedding provider error")
)
