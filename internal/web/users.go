package web

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jarvislab/authcore/internal/authcore"
	"github.com/jarvislab/authcore/pkg/tokenvalidator"
)

// InMemoryUsers is a simple user store used for demo and local runs.
type InMemoryUsers struct {
	mutex sync.Mutex
	Users map[string]UserProfile
}

// UserProfile represents an application user.
type UserProfile struct {
	Email   string
	Display string
}

// ErrUserProfileNotFound is returned when a profile is missing in the store.
var ErrUserProfileNotFound = errors.New("user_profile_not_found")

// NewInMemoryUsers constructs a store with an empty map.
func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{Users: make(map[string]UserProfile)}
}

// UpsertGoogleUser inserts or updates a user based on the provider subject.
func (store *InMemoryUsers) UpsertGoogleUser(ctx context.Context, googleSub string, userEmail string, userDisplayName string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	subjectID := "google:" + googleSub
	store.Users[subjectID] = UserProfile{
		Email:   userEmail,
		Display: userDisplayName,
	}
	return subjectID, nil
}

// GetUserProfile returns a profile by subject id.
func (store *InMemoryUsers) GetUserProfile(ctx context.Context, subjectID string) (string, string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.Users[subjectID]
	if !ok {
		return "", "", ErrUserProfileNotFound
	}
	return record.Email, record.Display, nil
}

// HandleWhoAmI resolves the authenticated user's profile payload.
func HandleWhoAmI(logger *zap.Logger, users authcore.UserStore) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if users == nil {
		panic("user store is required")
	}

	return func(contextGin *gin.Context) {
		claimsValue, found := contextGin.Get(authcore.ClaimsContextKey)
		if !found {
			logger.Warn("missing auth claims on context",
				zap.String("code", "api.me.missing_claims"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, ok := claimsValue.(*tokenvalidator.Claims)
		if !ok || claims.GetSubjectID() == "" {
			logger.Warn("malformed auth claims on context",
				zap.String("code", "api.me.malformed_claims"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		userEmail, userDisplayName, profileErr := users.GetUserProfile(contextGin, claims.GetSubjectID())
		if profileErr != nil {
			contextGin.AbortWithStatus(http.StatusNotFound)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"subject_id": claims.GetSubjectID(),
			"email":      userEmail,
			"display":    userDisplayName,
			"expires":    claims.GetExpiresAt(),
		})
	}
}
