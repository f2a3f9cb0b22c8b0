package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/jarvislab/authcore/internal/authcore"
	"github.com/jarvislab/authcore/pkg/tokenvalidator"
)

func TestInMemoryUsersUpsertAndLookup(t *testing.T) {
	t.Parallel()

	store := NewInMemoryUsers()
	ctx := context.Background()

	subjectID, upsertErr := store.UpsertGoogleUser(ctx, "sub-123", "user@example.com", "Demo User")
	if upsertErr != nil {
		t.Fatalf("unexpected upsert error: %v", upsertErr)
	}
	if subjectID != "google:sub-123" {
		t.Fatalf("unexpected subject: %q", subjectID)
	}

	userEmail, userDisplayName, profileErr := store.GetUserProfile(ctx, subjectID)
	if profileErr != nil {
		t.Fatalf("unexpected profile error: %v", profileErr)
	}
	if userEmail != "user@example.com" || userDisplayName != "Demo User" {
		t.Fatalf("unexpected profile: %q %q", userEmail, userDisplayName)
	}

	// Upsert is stable for the same provider subject.
	again, _ := store.UpsertGoogleUser(ctx, "sub-123", "renamed@example.com", "Renamed")
	if again != subjectID {
		t.Fatalf("expected stable subject id, got %q", again)
	}
	userEmail, _, _ = store.GetUserProfile(ctx, subjectID)
	if userEmail != "renamed@example.com" {
		t.Fatalf("expected updated email, got %q", userEmail)
	}

	if _, _, missingErr := store.GetUserProfile(ctx, "google:absent"); !errors.Is(missingErr, ErrUserProfileNotFound) {
		t.Fatalf("expected profile not found, got %v", missingErr)
	}
}

func TestHandleWhoAmI(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := NewInMemoryUsers()
	subjectID, _ := store.UpsertGoogleUser(context.Background(), "sub-123", "user@example.com", "Demo User")

	router := gin.New()
	router.GET("/me", func(contextGin *gin.Context) {
		contextGin.Set(authcore.ClaimsContextKey, &tokenvalidator.Claims{
			SubjectID: subjectID,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject: subjectID,
			},
		})
	}, HandleWhoAmI(zap.NewNop(), store))

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/me", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var response struct {
		SubjectID string `json:"subject_id"`
		Email     string `json:"email"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.SubjectID != subjectID || response.Email != "user@example.com" {
		t.Fatalf("unexpected response: %#v", response)
	}
}

func TestHandleWhoAmIWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/me", HandleWhoAmI(zap.NewNop(), NewInMemoryUsers()))

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/me", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestConfigureCORSValidOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)

	middleware, err := ConfigureCORS(zap.NewNop(), []string{"https://app.example.com", "http://localhost:3000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	router := gin.New()
	router.Use(middleware)
	router.GET("/ping", func(contextGin *gin.Context) { contextGin.Status(http.StatusOK) })

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	request.Header.Set("Origin", "https://app.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
}

func TestConfigureCORSRejectsBadConfigurations(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
	}{
		{name: "empty list", origins: nil},
		{name: "wildcard", origins: []string{"*"}},
		{name: "missing scheme", origins: []string{"app.example.com"}},
		{name: "path segment", origins: []string{"https://app.example.com/callback"}},
		{name: "unsupported scheme", origins: []string{"ftp://app.example.com"}},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := ConfigureCORS(zap.NewNop(), testCase.origins); err == nil {
				t.Fatalf("expected configuration error")
			}
		})
	}
}
