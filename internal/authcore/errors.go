package authcore

import "errors"

var (
	// ErrGrantNotFound indicates no provider refresh credential is on file for the subject.
	ErrGrantNotFound = errors.New("grant_store.not_found")
	// ErrGrantEmpty indicates that the provided grant text is empty.
	ErrGrantEmpty = errors.New("grant_store.empty_grant")
	// ErrProviderRejected indicates the identity provider refused the stored grant.
	ErrProviderRejected = errors.New("provider.rejected")
	// ErrProviderUnavailable indicates the identity provider could not be reached.
	ErrProviderUnavailable = errors.New("provider.unavailable")
)
