package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jarvislab/authcore/pkg/tokenvalidator"
)

// ErrEmptySubject indicates a mint attempt without a subject identifier.
var ErrEmptySubject = errors.New("token.mint.empty_subject")

// MintToken creates a signed HS256 access token for the subject. The issued
// token carries a fresh issued-at/expires-at window; refreshing always mints
// a new value, never mutates an old one.
func MintToken(clock Clock, subjectID string, issuer string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, fmt.Errorf("token.mint.failure: %w", ErrEmptySubject)
	}
	issuedAt := clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenvalidator.Claims{
		SubjectID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token.mint.failure: %w", err)
	}
	return signed, expiresAt, nil
}
