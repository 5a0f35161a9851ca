// Package blob provides the content-addressed raw message storage layer:
// the narrow object-store interface, blob naming, the persisted location
// URI format, and the compression/encryption codec applied to payloads.
//
// Metadata rows never embed raw message bytes. They hold a [Location]
// pointing at a named blob under a storage profile, plus the transform
// tags needed to decode it. Any backend that can put, get, and delete a
// named byte stream can serve as a profile: see blob/s3, blob/gcs, and
// blob/memory.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a named blob does not exist.
	ErrNotFound = errors.New("blob: not found")

	// ErrInvalidLocation is returned for malformed location URIs,
	// including URIs with a scheme other than "blob".
	ErrInvalidLocation = errors.New("blob: invalid location uri")

	// ErrUnknownProfile is returned when a location references a storage
	// profile that is not registered.
	ErrUnknownProfile = errors.New("blob: unknown storage profile")

	// ErrUnknownCompression is returned when a location carries a
	// compression tag no codec understands.
	ErrUnknownCompression = errors.New("blob: unknown compression tag")

	// ErrUnknownKeyAlias is returned when a location references an
	// encryption key alias missing from the keyring.
	ErrUnknownKeyAlias = errors.New("blob: unknown encryption key alias")
)

// Store is a named byte-stream object store. Implementations must be safe
// for concurrent use. The core depends only on this interface, never on a
// specific provider.
type Store interface {
	// Put stores the content under name, overwriting any prior blob.
	Put(ctx context.Context, name string, content io.Reader) error

	// Get returns a reader for the named blob.
	// Returns ErrNotFound if the blob does not exist.
	// Caller is responsible for closing the reader.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the named blob. Deleting an absent blob is a no-op.
	Delete(ctx context.Context, name string) error
}

// Profiles is the storage profile table: named blob stores resolvable
// from a Location's profile component. It is built once at startup from
// configuration and read-only afterwards.
type Profiles struct {
	stores map[string]Store
}

// NewProfiles builds a profile table from named stores.
func NewProfiles(stores map[string]Store) *Profiles {
	m := make(map[string]Store, len(stores))
	for name, s := range stores {
		m[name] = s
	}
	return &Profiles{stores: m}
}

// Resolve returns the store registered under the profile name.
func (p *Profiles) Resolve(profile string) (Store, error) {
	s, ok := p.stores[profile]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, profile)
	}
	return s, nil
}
