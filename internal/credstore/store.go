package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jarvislab/authcore/pkg/tokenvalidator"
)

// DefaultSlack is the safety margin before expiry that triggers proactive
// refresh, so an in-flight request never crosses the expiry boundary.
const DefaultSlack = 5 * time.Minute

// ErrStoreUnavailable means both the primary and the fallback medium failed.
// Read paths never surface it; it only guards Save, which must not silently
// drop a successful refresh.
var ErrStoreUnavailable = errors.New("credential_store.unavailable")

// StoredCredentialRecord is the one durable credential unit per local
// principal.
type StoredCredentialRecord struct {
	Token                     string `json:"token"`
	ProviderRefreshCredential string `json:"provider_refresh_credential"`
	SubjectID                 string `json:"subject_id"`
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// CredentialStore owns the durable record. All callers go through its API;
// no shared mutable token lives outside this boundary.
type CredentialStore struct {
	primary  Medium
	fallback Medium
	clock    Clock
	logger   *zap.Logger
}

// Option configures a CredentialStore.
type Option func(*CredentialStore)

// WithClock overrides the wall clock, for tests.
func WithClock(clock Clock) Option {
	return func(store *CredentialStore) {
		store.clock = clock
	}
}

// New constructs a CredentialStore over a primary and a fallback medium.
func New(primary Medium, fallback Medium, logger *zap.Logger, options ...Option) (*CredentialStore, error) {
	if primary == nil {
		return nil, fmt.Errorf("credential_store.new: primary medium is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store := &CredentialStore{
		primary:  primary,
		fallback: fallback,
		clock:    systemClock{},
		logger:   logger,
	}
	for _, option := range options {
		option(store)
	}
	return store, nil
}

// Save writes the record to the primary medium; on primary failure it
// degrades to the fallback and logs the degradation. Only when both media
// fail does the caller see an error.
func (store *CredentialStore) Save(ctx context.Context, record StoredCredentialRecord) error {
	payload, marshalErr := json.Marshal(record)
	if marshalErr != nil {
		return fmt.Errorf("credential_store.save: %w", marshalErr)
	}
	primaryErr := store.primary.Write(ctx, string(payload))
	if primaryErr == nil {
		return nil
	}
	store.logger.Warn("primary credential medium failed; degrading to fallback",
		zap.String("code", "credential_store.save.degraded"),
		zap.Error(primaryErr))
	if store.fallback == nil {
		return fmt.Errorf("credential_store.save: %w: %v", ErrStoreUnavailable, primaryErr)
	}
	if fallbackErr := store.fallback.Write(ctx, string(payload)); fallbackErr != nil {
		return fmt.Errorf("credential_store.save: %w: primary: %v, fallback: %v", ErrStoreUnavailable, primaryErr, fallbackErr)
	}
	return nil
}

// Load reads the record, trying the primary then the fallback medium.
// Absence and corruption are both reported as absent: first run and prior
// logout are normal states, and the resolver's fallback chain handles
// recovery from anything unreadable.
func (store *CredentialStore) Load(ctx context.Context) (StoredCredentialRecord, bool) {
	if record, ok := store.loadFrom(ctx, store.primary, "primary"); ok {
		return record, true
	}
	if store.fallback == nil {
		return StoredCredentialRecord{}, false
	}
	return store.loadFrom(ctx, store.fallback, "fallback")
}

func (store *CredentialStore) loadFrom(ctx context.Context, medium Medium, label string) (StoredCredentialRecord, bool) {
	payload, readErr := medium.Read(ctx)
	if readErr != nil {
		return StoredCredentialRecord{}, false
	}
	var record StoredCredentialRecord
	if unmarshalErr := json.Unmarshal([]byte(payload), &record); unmarshalErr != nil {
		store.logger.Warn("stored credential record is corrupt; treating as absent",
			zap.String("code", "credential_store.load.corrupt"),
			zap.String("medium", label))
		return StoredCredentialRecord{}, false
	}
	if strings.TrimSpace(record.Token) == "" || strings.TrimSpace(record.SubjectID) == "" {
		store.logger.Warn("stored credential record is incomplete; treating as absent",
			zap.String("code", "credential_store.load.incomplete"),
			zap.String("medium", label))
		return StoredCredentialRecord{}, false
	}
	return record, true
}

// Delete removes the record from both media. Deleting an absent record
// succeeds.
func (store *CredentialStore) Delete(ctx context.Context) error {
	primaryErr := store.primary.Delete(ctx)
	var fallbackErr error
	if store.fallback != nil {
		fallbackErr = store.fallback.Delete(ctx)
	}
	if primaryErr != nil {
		return fmt.Errorf("credential_store.delete: %w", primaryErr)
	}
	if fallbackErr != nil {
		return fmt.Errorf("credential_store.delete: %w", fallbackErr)
	}
	return nil
}

// IsExpiring reports whether now + slack reaches the token's expiry. A token
// whose claims cannot be decoded counts as expiring; the refresh path sorts
// it out.
func (store *CredentialStore) IsExpiring(token string, slack time.Duration) bool {
	claims, decodeErr := tokenvalidator.DecodeUnverified(token)
	if decodeErr != nil {
		return true
	}
	expiresAt := claims.GetExpiresAt()
	if expiresAt.IsZero() {
		return true
	}
	return !store.clock.Now().Add(slack).Before(expiresAt)
}
