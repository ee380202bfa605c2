// Package store persists named collections of JSON records.
//
// A collection is a JSON array of objects. Backends distinguish a
// collection that was never created (ErrNotFound) from one whose content
// cannot be parsed (ErrCorrupt); an empty or whitespace-only collection is
// a valid empty sequence.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is returned when a collection was never created
	ErrNotFound = errors.New("collection not found")
	// ErrCorrupt is returned when a collection exists but is not a JSON array
	ErrCorrupt = errors.New("collection is corrupt")
	// ErrInvalidName is returned for collection names outside [a-z0-9_]
	ErrInvalidName = errors.New("invalid collection name")
)

// UpdateFunc receives the current items of a collection and returns the
// items to persist. Returning an error aborts the write.
type UpdateFunc func(items []json.RawMessage) ([]json.RawMessage, error)

// Store is the record store contract consumed by the services
type Store interface {
	// Load returns every item of the collection in stored order
	Load(ctx context.Context, name string) ([]json.RawMessage, error)
	// Update performs a serialized read-modify-write. An absent collection
	// is presented as empty; a corrupt one fails with ErrCorrupt.
	Update(ctx context.Context, name string, fn UpdateFunc) error
	// NextSequence returns a value strictly greater than both the last
	// value handed out for name and floor, and persists it.
	NextSequence(ctx context.Context, name string, floor int64) (int64, error)
	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
	// Backend names the implementation for logs and metrics
	Backend() string
}

var namePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// DecodeCollection parses stored collection content
func DecodeCollection(content []byte) ([]json.RawMessage, error) {
	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return []json.RawMessage{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(content, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if items == nil {
		// literal null
		return nil, fmt.Errorf("%w: collection is null", ErrCorrupt)
	}
	return items, nil
}

// EncodeCollection renders items the way every backend stores them
func EncodeCollection(items []json.RawMessage) ([]byte, error) {
	if items == nil {
		items = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode collection: %w", err)
	}
	return data, nil
}

// Append is a convenience Update that adds one item at the end
func Append(ctx context.Context, s Store, name string, item any) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return s.Update(ctx, name, func(items []json.RawMessage) ([]json.RawMessage, error) {
		return append(items, raw), nil
	})
}

// Decode converts raw items to T. Items that do not decode are skipped
// and counted rather than failing the whole collection.
func Decode[T any](items []json.RawMessage) (records []T, skipped int) {
	records = make([]T, 0, len(items))
	for _, raw := range items {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

// LoadAs loads a collection and decodes it into T
func LoadAs[T any](ctx context.Context, s Store, name string) ([]T, int, error) {
	items, err := s.Load(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	records, skipped := Decode[T](items)
	return records, skipped, nil
}
