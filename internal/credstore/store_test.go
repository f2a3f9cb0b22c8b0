package credstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/jarvislab/authcore/pkg/tokenvalidator"
)

type fixedClock struct {
	current time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.current
}

// fakeMedium is an in-memory Medium with injectable failures.
type fakeMedium struct {
	payload  string
	present  bool
	writeErr error
	readErr  error
}

func (medium *fakeMedium) Read(ctx context.Context) (string, error) {
	if medium.readErr != nil {
		return "", medium.readErr
	}
	if !medium.present {
		return "", errors.New("not found")
	}
	return medium.payload, nil
}

func (medium *fakeMedium) Write(ctx context.Context, payload string) error {
	if medium.writeErr != nil {
		return medium.writeErr
	}
	medium.payload = payload
	medium.present = true
	return nil
}

func (medium *fakeMedium) Delete(ctx context.Context) error {
	medium.payload = ""
	medium.present = false
	return nil
}

func signedToken(t *testing.T, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenvalidator.Claims{
		SubjectID: "subject-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "issuer",
			Subject:   "subject-1",
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte("any-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	t.Parallel()

	primary := &fakeMedium{}
	store, newErr := New(primary, nil, zap.NewNop())
	if newErr != nil {
		t.Fatalf("unexpected error: %v", newErr)
	}

	record := StoredCredentialRecord{
		Token:                     "token-value",
		ProviderRefreshCredential: "grant-value",
		SubjectID:                 "subject-1",
	}
	if err := store.Save(context.Background(), record); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	loaded, ok := store.Load(context.Background())
	if !ok {
		t.Fatalf("expected record present")
	}
	if loaded != record {
		t.Fatalf("unexpected record: %#v", loaded)
	}
}

func TestSaveDegradesToFallback(t *testing.T) {
	t.Parallel()

	primary := &fakeMedium{writeErr: errors.New("keyring locked"), readErr: errors.New("keyring locked")}
	fallback := &fakeMedium{}
	store, _ := New(primary, fallback, zap.NewNop())

	record := StoredCredentialRecord{Token: "token-value", SubjectID: "subject-1"}
	if err := store.Save(context.Background(), record); err != nil {
		t.Fatalf("expected degraded save to succeed, got %v", err)
	}
	if !fallback.present {
		t.Fatalf("expected record written to fallback")
	}

	loaded, ok := store.Load(context.Background())
	if !ok || loaded.Token != "token-value" {
		t.Fatalf("expected load from fallback, got %#v (%v)", loaded, ok)
	}
}

func TestSaveFailsOnlyWhenBothMediaFail(t *testing.T) {
	t.Parallel()

	primary := &fakeMedium{writeErr: errors.New("keyring locked")}
	fallback := &fakeMedium{writeErr: errors.New("disk full")}
	store, _ := New(primary, fallback, zap.NewNop())

	err := store.Save(context.Background(), StoredCredentialRecord{Token: "token-value", SubjectID: "subject-1"})
	if err == nil || !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable error, got %v", err)
	}
}

func TestLoadTreatsCorruptionAsAbsent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "{{{corrupt"},
		{name: "missing token", payload: `{"subject_id":"subject-1"}`},
		{name: "missing subject", payload: `{"token":"token-value"}`},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			primary := &fakeMedium{payload: testCase.payload, present: true}
			store, _ := New(primary, nil, zap.NewNop())
			if _, ok := store.Load(context.Background()); ok {
				t.Fatalf("expected corrupt record to read as absent")
			}
		})
	}
}

func TestDeleteIsIdempotentAcrossMedia(t *testing.T) {
	t.Parallel()

	primary := &fakeMedium{payload: `{"token":"t","subject_id":"s"}`, present: true}
	fallback := &fakeMedium{payload: `{"token":"t","subject_id":"s"}`, present: true}
	store, _ := New(primary, fallback, zap.NewNop())

	if err := store.Delete(context.Background()); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if primary.present || fallback.present {
		t.Fatalf("expected both media cleared")
	}
	if err := store.Delete(context.Background()); err != nil {
		t.Fatalf("expected repeat delete to succeed, got %v", err)
	}
}

func TestIsExpiring(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store, _ := New(&fakeMedium{}, nil, zap.NewNop(), WithClock(fixedClock{current: now}))

	tests := []struct {
		name     string
		token    string
		expiring bool
	}{
		{
			name:     "fresh token outside slack",
			token:    signedToken(t, now, time.Hour),
			expiring: false,
		},
		{
			name:     "inside slack window",
			token:    signedToken(t, now.Add(-56*time.Minute), time.Hour),
			expiring: true,
		},
		{
			name:     "exactly at slack boundary",
			token:    signedToken(t, now.Add(-55*time.Minute), time.Hour),
			expiring: true,
		},
		{
			name:     "already expired",
			token:    signedToken(t, now.Add(-2*time.Hour), time.Hour),
			expiring: true,
		},
		{
			name:     "undecodable token",
			token:    "garbage",
			expiring: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			if got := store.IsExpiring(testCase.token, DefaultSlack); got != testCase.expiring {
				t.Fatalf("expected expiring=%v, got %v", testCase.expiring, got)
			}
		})
	}
}
