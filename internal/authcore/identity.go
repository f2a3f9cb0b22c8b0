package authcore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// ErrUnverifiedIdentity indicates the provider identity could not be trusted.
var ErrUnverifiedIdentity = errors.New("identity.unverified")

// VerifiedIdentity is the subset of provider identity claims the lifecycle
// needs.
type VerifiedIdentity struct {
	ProviderSubject string
	Email           string
	EmailVerified   bool
	DisplayName     string
}

// IdentityVerifier verifies a raw provider ID token and extracts identity
// claims.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawIDToken string, audience string) (VerifiedIdentity, error)
}

// GoogleIdentityVerifier verifies Google ID tokens against Google's
// published signing keys.
type GoogleIdentityVerifier struct {
	validator *idtoken.Validator
}

// NewGoogleIdentityVerifier constructs a verifier backed by Google's key set.
func NewGoogleIdentityVerifier(ctx context.Context) (*GoogleIdentityVerifier, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity.verifier_init: %w", err)
	}
	return &GoogleIdentityVerifier{validator: validator}, nil
}

// Verify validates the ID token and checks issuer and audience.
func (verifier *GoogleIdentityVerifier) Verify(ctx context.Context, rawIDToken string, audience string) (VerifiedIdentity, error) {
	payload, validateErr := verifier.validator.Validate(ctx, rawIDToken, audience)
	if validateErr != nil {
		return VerifiedIdentity{}, fmt.Errorf("identity.verify: %w", ErrUnverifiedIdentity)
	}
	issuerValue, okIssuer := payload.Claims["iss"].(string)
	if !okIssuer || (issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com") {
		return VerifiedIdentity{}, fmt.Errorf("identity.verify.issuer: %w", ErrUnverifiedIdentity)
	}
	providerSubject, _ := payload.Claims["sub"].(string)
	userEmail, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	displayName, _ := payload.Claims["name"].(string)
	if providerSubject == "" || userEmail == "" || !emailVerified {
		return VerifiedIdentity{}, fmt.Errorf("identity.verify.claims: %w", ErrUnverifiedIdentity)
	}
	return VerifiedIdentity{
		ProviderSubject: providerSubject,
		Email:           userEmail,
		EmailVerified:   emailVerified,
		DisplayName:     displayName,
	}, nil
}
