package authcore

import "context"

// UserStore persists and retrieves application users.
type UserStore interface {
	UpsertGoogleUser(ctx context.Context, googleSub string, userEmail string, userDisplayName string) (subjectID string, err error)
	GetUserProfile(ctx context.Context, subjectID string) (userEmail string, userDisplayName string, err error)
}

// GrantStore is the authoritative server-side record of each subject's
// provider refresh credential, keyed by subject. The client keeps its own
// cached copy for offline decisions; validity is decided here.
type GrantStore interface {
	Save(ctx context.Context, subjectID string, grant string) error
	Lookup(ctx context.Context, subjectID string) (grant string, err error)
	Delete(ctx context.Context, subjectID string) error
}
