package authcore

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jarvislab/authcore/pkg/tokenvalidator"
)

// ClaimsContextKey is where RequireToken stores the validated claims.
const ClaimsContextKey = "auth_claims"

// RequireToken validates the bearer token on the request and injects claims.
func RequireToken(validator *tokenvalidator.Validator) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		bearer := tokenvalidator.BearerToken(contextGin.Request)
		claims, validateErr := validator.ValidateToken(bearer)
		if validateErr != nil {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.Set(ClaimsContextKey, claims)
		contextGin.Next()
	}
}
