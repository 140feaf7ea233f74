package storage

import (
	"context"
	"errors"
	"fmt"
)

// ObjectStore stores and retrieves whole documents by key
type ObjectStore interface {
	// StoreDocument replaces the document under key
	StoreDocument(ctx context.Context, key string, doc []byte) error

	// RetrieveDocument returns the document under key, or ErrDocumentNotFound
	RetrieveDocument(ctx context.Context, key string) ([]byte, error)

	// Describe returns a human readable location of key
	Describe(key string) string
}

// RemoteStore keeps snapshot documents in an object store
type RemoteStore struct {
	objects ObjectStore
}

// NewRemoteStore creates a store on top of an object store
func NewRemoteStore(objects ObjectStore) *RemoteStore {
	return &RemoteStore{objects: objects}
}

// Load retrieves the snapshot for key. A missing document is not found.
func (s *RemoteStore) Load(ctx context.Context, key Key) (Result, error) {
	data, err := s.objects.RetrieveDocument(ctx, key.Path())
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return notFound(), nil
		}
		return Result{}, fmt.Errorf("failed to retrieve knowledge %s: %w", key.Path(), err)
	}
	return DecodeDocument(data), nil
}

// Save replaces the document for key
func (s *RemoteStore) Save(ctx context.Context, key Key, snapshot Snapshot) error {
	data, err := EncodeDocument(snapshot)
	if err != nil {
		return err
	}
	if err := s.objects.StoreDocument(ctx, key.Path(), data); err != nil {
		return fmt.Errorf("failed to store knowledge %s: %w", key.Path(), err)
	}
	return nil
}

// Location returns the object store location of the snapshot for key
func (s *RemoteStore) Location(key Key) string {
	return s.objects.Describe(key.Path())
}
