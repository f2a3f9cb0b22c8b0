package tokenvalidator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fixedClock struct {
	current time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.current
}

func mintToken(t *testing.T, signingKey []byte, issuer string, subjectID string, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SubjectID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	})
	result, err := token.SignedString(signingKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return result
}

func TestNewValidatorRequiresSigningKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Issuer: "issuer"})
	if err == nil || !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
}

func TestNewValidatorRequiresIssuer(t *testing.T) {
	t.Parallel()

	_, err := New(Config{SigningKey: []byte("secret")})
	if err == nil || !errors.Is(err, ErrMissingIssuer) {
		t.Fatalf("expected missing issuer error, got %v", err)
	}
}

func TestNewValidatorDefaults(t *testing.T) {
	t.Parallel()

	validator, err := New(Config{
		SigningKey: []byte("secret"),
		Issuer:     "issuer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validator.clock == nil {
		t.Fatalf("expected default clock to be set")
	}
}

func TestValidateTokenSuccess(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	validator, err := New(Config{
		SigningKey: []byte("secret-key"),
		Issuer:     "issuer",
		Clock:      fixedClock{current: now},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tokenValue := mintToken(t, []byte("secret-key"), "issuer", "subject-123", now, time.Minute)

	claims, validateErr := validator.ValidateToken(tokenValue)
	if validateErr != nil {
		t.Fatalf("unexpected validation error: %v", validateErr)
	}
	if claims.GetSubjectID() != "subject-123" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
	if !claims.GetIssuedAtTime().Equal(now) {
		t.Fatalf("unexpected issued at: %v", claims.GetIssuedAtTime())
	}
	if !claims.GetExpiresAt().Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected expiry: %v", claims.GetExpiresAt())
	}
}

func TestValidateTokenRejectsInvalidCases(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	tests := []struct {
		name      string
		tokenFunc func() string
		expectErr error
	}{
		{
			name:      "empty token",
			tokenFunc: func() string { return "" },
			expectErr: ErrMissingToken,
		},
		{
			name: "bad signature",
			tokenFunc: func() string {
				return mintToken(t, []byte("other-key"), "issuer", "subject-123", now, time.Minute)
			},
			expectErr: ErrInvalidSignature,
		},
		{
			name: "tampered payload",
			tokenFunc: func() string {
				tokenValue := mintToken(t, []byte("secret-key"), "issuer", "subject-123", now, time.Minute)
				return tokenValue[:len(tokenValue)-4] + "aaaa"
			},
			expectErr: ErrInvalidSignature,
		},
		{
			name:      "not a token",
			tokenFunc: func() string { return "not-a-jwt-at-all" },
			expectErr: ErrMalformedClaims,
		},
		{
			name: "wrong issuer",
			tokenFunc: func() string {
				return mintToken(t, []byte("secret-key"), "other-issuer", "subject-123", now, time.Minute)
			},
			expectErr: ErrMalformedClaims,
		},
		{
			name: "empty subject",
			tokenFunc: func() string {
				return mintToken(t, []byte("secret-key"), "issuer", "", now, time.Minute)
			},
			expectErr: ErrMalformedClaims,
		},
		{
			name: "expired",
			tokenFunc: func() string {
				return mintToken(t, []byte("secret-key"), "issuer", "subject-123", now.Add(-2*time.Minute), time.Minute)
			},
			expectErr: ErrTokenExpired,
		},
	}

	validator, err := New(Config{
		SigningKey: []byte("secret-key"),
		Issuer:     "issuer",
		Clock:      fixedClock{current: now},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			_, validateErr := validator.ValidateToken(testCase.tokenFunc())
			if validateErr == nil || !errors.Is(validateErr, testCase.expectErr) {
				t.Fatalf("expected %v, got %v", testCase.expectErr, validateErr)
			}
		})
	}
}

func TestValidateForRefreshAcceptsExpiredToken(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	validator, err := New(Config{
		SigningKey: []byte("secret-key"),
		Issuer:     "issuer",
		Clock:      fixedClock{current: now},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expiredToken := mintToken(t, []byte("secret-key"), "issuer", "subject-123", now.Add(-2*time.Hour), time.Hour)
	claims, validateErr := validator.ValidateForRefresh(expiredToken)
	if validateErr != nil {
		t.Fatalf("expected expired token to pass refresh validation, got %v", validateErr)
	}
	if claims.GetSubjectID() != "subject-123" {
		t.Fatalf("unexpected subject: %q", claims.GetSubjectID())
	}
}

func TestValidateForRefreshStillRejectsBadSignature(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	validator, err := New(Config{
		SigningKey: []byte("secret-key"),
		Issuer:     "issuer",
		Clock:      fixedClock{current: now},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	forgedToken := mintToken(t, []byte("other-key"), "issuer", "subject-123", now.Add(-2*time.Hour), time.Hour)
	if _, validateErr := validator.ValidateForRefresh(forgedToken); validateErr == nil || !errors.Is(validateErr, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", validateErr)
	}
}

func TestDecodeUnverified(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	tokenValue := mintToken(t, []byte("any-key"), "issuer", "subject-123", now, time.Minute)

	claims, decodeErr := DecodeUnverified(tokenValue)
	if decodeErr != nil {
		t.Fatalf("unexpected decode error: %v", decodeErr)
	}
	if claims.GetSubjectID() != "subject-123" {
		t.Fatalf("unexpected subject: %q", claims.GetSubjectID())
	}
	if !claims.GetExpiresAt().Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected expiry: %v", claims.GetExpiresAt())
	}

	if _, emptyErr := DecodeUnverified(""); emptyErr == nil || !errors.Is(emptyErr, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", emptyErr)
	}
	if _, garbageErr := DecodeUnverified("garbage"); garbageErr == nil || !errors.Is(garbageErr, ErrMalformedClaims) {
		t.Fatalf("expected malformed claims error, got %v", garbageErr)
	}
}

func TestBearerToken(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if value := BearerToken(request); value != "" {
		t.Fatalf("expected empty token without header, got %q", value)
	}

	request.Header.Set("Authorization", "Bearer abc.def.ghi")
	if value := BearerToken(request); value != "abc.def.ghi" {
		t.Fatalf("unexpected bearer value: %q", value)
	}

	request.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if value := BearerToken(request); value != "" {
		t.Fatalf("expected empty token for non-bearer scheme, got %q", value)
	}
}
