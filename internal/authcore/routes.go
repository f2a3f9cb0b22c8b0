package authcore

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jarvislab/authcore/pkg/tokenvalidator"
)

// RouteDeps carries the collaborators the auth routes need.
type RouteDeps struct {
	Users     UserStore
	Grants    GrantStore
	Refresh   *RefreshService
	Provider  ProviderClient
	Identity  IdentityVerifier
	Validator *tokenvalidator.Validator
	Clock     Clock
	Logger    *zap.Logger
	Metrics   MetricsRecorder
}

// MountAuthRoutes registers /auth/google/exchange, /auth/token/refresh,
// /auth/logout, and /auth/me.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, deps RouteDeps) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router.POST("/auth/google/exchange", func(contextGin *gin.Context) {
		var inbound struct {
			Code string `json:"code"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Code) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}

		if !configuration.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "https_required"})
			return
		}

		providerToken, rawIDToken, exchangeErr := deps.Provider.ExchangeAuthCode(contextGin, inbound.Code)
		if exchangeErr != nil {
			record(deps.Metrics, MetricLoginFailure)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_code"})
			return
		}

		identity, verifyErr := deps.Identity.Verify(contextGin, rawIDToken, configuration.GoogleWebClientID)
		if verifyErr != nil {
			record(deps.Metrics, MetricLoginFailure)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unverified_identity"})
			return
		}

		subjectID, upsertErr := deps.Users.UpsertGoogleUser(contextGin, identity.ProviderSubject, identity.Email, identity.DisplayName)
		if upsertErr != nil || subjectID == "" {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		if providerToken.RefreshCredential != "" {
			if saveErr := deps.Grants.Save(contextGin, subjectID, providerToken.RefreshCredential); saveErr != nil {
				contextGin.AbortWithStatus(http.StatusInternalServerError)
				return
			}
		} else {
			logger.Warn("provider returned no refresh credential; refresh will be unavailable",
				zap.String("code", "auth.exchange.no_grant"),
				zap.String("subject_id", subjectID))
		}

		token, expiresAt, mintErr := MintToken(deps.Clock, subjectID, configuration.TokenIssuer, configuration.TokenSigningKey, configuration.TokenTTL)
		if mintErr != nil {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		record(deps.Metrics, MetricLoginSuccess)
		contextGin.JSON(http.StatusOK, gin.H{
			"token":                       token,
			"subject_id":                  subjectID,
			"email":                       identity.Email,
			"display":                     identity.DisplayName,
			"expires_at":                  expiresAt.Unix(),
			"provider_refresh_credential": providerToken.RefreshCredential,
		})
	})

	router.POST("/auth/token/refresh", func(contextGin *gin.Context) {
		// The caller's token is expected to be near expiry; the signature
		// still authenticates the subject, so expiry is not enforced here.
		bearer := tokenvalidator.BearerToken(contextGin.Request)
		claims, validateErr := deps.Validator.ValidateForRefresh(bearer)
		if validateErr != nil {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		result := deps.Refresh.Refresh(contextGin, claims.GetSubjectID())
		switch {
		case result.Outcome == RefreshOK:
			contextGin.JSON(http.StatusOK, gin.H{
				"token":      result.Token,
				"expires_at": result.ExpiresAt.Unix(),
			})
		case result.Outcome.Unavailable():
			// Grant-missing and grant-rejected collapse to the same status;
			// the client's only recovery is re-login either way.
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "refresh_unavailable"})
		case result.Outcome == RefreshProviderUnavailable:
			contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "provider_unavailable"})
		default:
			contextGin.AbortWithStatus(http.StatusInternalServerError)
		}
	})

	router.POST("/auth/logout", func(contextGin *gin.Context) {
		bearer := tokenvalidator.BearerToken(contextGin.Request)
		claims, validateErr := deps.Validator.ValidateForRefresh(bearer)
		if validateErr != nil {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if deleteErr := deps.Grants.Delete(contextGin, claims.GetSubjectID()); deleteErr != nil {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		record(deps.Metrics, MetricLogout)
		contextGin.Status(http.StatusNoContent)
	})

	router.GET("/auth/me", func(contextGin *gin.Context) {
		bearer := tokenvalidator.BearerToken(contextGin.Request)
		claims, validateErr := deps.Validator.ValidateToken(bearer)
		if validateErr != nil {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		userEmail, userDisplayName, profileErr := deps.Users.GetUserProfile(contextGin, claims.GetSubjectID())
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
	})
}

func record(metrics MetricsRecorder, event string) {
	if metrics != nil {
		metrics.Increment(event)
	}
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	scheme := request.Header.Get("X-Forwarded-Proto")
	if strings.EqualFold(scheme, "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	if splitErr == nil && host == "localhost" {
		return true
	}
	return false
}
