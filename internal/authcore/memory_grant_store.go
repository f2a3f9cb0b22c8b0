package authcore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryGrantStore is an in-memory store intended for tests and dev.
type MemoryGrantStore struct {
	mutex     sync.Mutex
	bySubject map[string]*memoryGrantRecord
}

type memoryGrantRecord struct {
	SubjectID   string
	Grant       string
	UpdatedUnix int64
}

// NewMemoryGrantStore creates a new in-memory grant store.
func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{bySubject: make(map[string]*memoryGrantRecord)}
}

// Save inserts or overwrites the subject's grant.
func (store *MemoryGrantStore) Save(ctx context.Context, subjectID string, grant string) error {
	if strings.TrimSpace(grant) == "" {
		return fmt.Errorf("grant_store.save: %w", ErrGrantEmpty)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.bySubject[subjectID] = &memoryGrantRecord{
		SubjectID:   subjectID,
		Grant:       grant,
		UpdatedUnix: time.Now().UTC().Unix(),
	}
	return nil
}

// Lookup returns the subject's grant.
func (store *MemoryGrantStore) Lookup(ctx context.Context, subjectID string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.bySubject[subjectID]
	if !ok {
		return "", fmt.Errorf("grant_store.lookup: %w", ErrGrantNotFound)
	}
	return record.Grant, nil
}

// Delete removes the subject's grant; removing an absent grant is not an error.
func (store *MemoryGrantStore) Delete(ctx context.Context, subjectID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.bySubject, subjectID)
	return nil
}
