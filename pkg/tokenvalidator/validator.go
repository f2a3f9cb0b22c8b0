package tokenvalidator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config configures the Validator.
type Config struct {
	SigningKey []byte
	Issuer     string
	Clock      Clock
}

// Sentinel errors exposed by the validator. Each one maps to a distinct
// rejection reason at the connection boundary.
var (
	ErrMissingSigningKey = errors.New("token.validator.missing_signing_key")
	ErrMissingIssuer     = errors.New("token.validator.missing_issuer")
	ErrMissingToken      = errors.New("token.validator.missing_token")
	ErrInvalidSignature  = errors.New("token.validator.invalid_signature")
	ErrMalformedClaims   = errors.New("token.validator.malformed_claims")
	ErrTokenExpired      = errors.New("token.validator.expired")
)

// Validator validates signed bearer tokens.
type Validator struct {
	signingKey []byte
	issuer     string
	clock      Clock
}

// Claims represent the lifecycle payload embedded inside access tokens.
type Claims struct {
	SubjectID string `json:"subject_id"`
	jwt.RegisteredClaims
}

// GetSubjectID returns the subject identifier from the token.
func (claims *Claims) GetSubjectID() string {
	if claims == nil {
		return ""
	}
	return claims.SubjectID
}

// GetIssuedAtTime returns the issuance timestamp.
func (claims *Claims) GetIssuedAtTime() time.Time {
	if claims == nil || claims.IssuedAt == nil {
		return time.Time{}
	}
	return claims.IssuedAt.Time
}

// GetExpiresAt returns the expiry timestamp.
func (claims *Claims) GetExpiresAt() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// New constructs a Validator after validating the supplied configuration.
func New(configuration Config) (*Validator, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("token.validator.new: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, fmt.Errorf("token.validator.new: %w", ErrMissingIssuer)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Validator{
		signingKey: configuration.SigningKey,
		issuer:     configuration.Issuer,
		clock:      clock,
	}, nil
}

// ValidateToken validates the provided token string and returns the parsed
// claims. Rejections carry exactly one of the sentinel errors so callers can
// classify without string matching.
func (validator *Validator) ValidateToken(tokenString string) (*Claims, error) {
	return validator.validate(tokenString, true)
}

// ValidateForRefresh performs the same checks as ValidateToken except the
// expiry check. The refresh endpoint accepts expiring tokens; the signature
// still authenticates the subject.
func (validator *Validator) ValidateForRefresh(tokenString string) (*Claims, error) {
	return validator.validate(tokenString, false)
}

func (validator *Validator) validate(tokenString string, enforceExpiry bool) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token.validator.validate: %w", ErrMissingToken)
	}
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time {
			return validator.clock.Now()
		}),
	}
	if !enforceExpiry {
		parserOptions = append(parserOptions, jwt.WithoutClaimsValidation())
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return validator.signingKey, nil
	}, parserOptions...)
	if parseErr != nil {
		switch {
		case errors.Is(parseErr, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("token.validator.validate: %w", ErrTokenExpired)
		case errors.Is(parseErr, jwt.ErrTokenSignatureInvalid), errors.Is(parseErr, jwt.ErrTokenUnverifiable):
			return nil, fmt.Errorf("token.validator.validate: %w", ErrInvalidSignature)
		default:
			return nil, fmt.Errorf("token.validator.validate: %w", ErrMalformedClaims)
		}
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("token.validator.validate: %w", ErrInvalidSignature)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("token.validator.validate: %w", ErrMalformedClaims)
	}
	if malformedErr := checkClaimShape(claims, validator.issuer); malformedErr != nil {
		return nil, malformedErr
	}
	if enforceExpiry {
		current := validator.clock.Now()
		if current.After(claims.ExpiresAt.Time) {
			return nil, fmt.Errorf("token.validator.validate: %w", ErrTokenExpired)
		}
		if claims.NotBefore != nil && current.Before(claims.NotBefore.Time) {
			return nil, fmt.Errorf("token.validator.validate: %w", ErrMalformedClaims)
		}
	}
	return claims, nil
}

// checkClaimShape enforces the lifecycle invariants: subject present,
// issuer matching, and expires_at strictly after issued_at.
func checkClaimShape(claims *Claims, issuer string) error {
	if strings.TrimSpace(claims.SubjectID) == "" {
		return fmt.Errorf("token.validator.validate: %w", ErrMalformedClaims)
	}
	if claims.Issuer != issuer {
		return fmt.Errorf("token.validator.validate: %w", ErrMalformedClaims)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return fmt.Errorf("token.validator.validate: %w", ErrMalformedClaims)
	}
	if !claims.ExpiresAt.Time.After(claims.IssuedAt.Time) {
		return fmt.Errorf("token.validator.validate: %w", ErrMalformedClaims)
	}
	return nil
}

// DecodeUnverified extracts claims without verifying the signature. It exists
// for local expiry inspection only; never authorize anything with its result.
func DecodeUnverified(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token.validator.decode_unverified: %w", ErrMissingToken)
	}
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("token.validator.decode_unverified: %w", ErrMalformedClaims)
	}
	return claims, nil
}

// BearerToken extracts a bearer token from an Authorization header value.
func BearerToken(request *http.Request) string {
	if request == nil {
		return ""
	}
	header := request.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
