package authcore

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RefreshOutcome classifies the result of a refresh attempt.
type RefreshOutcome int

const (
	// RefreshOK means a new token was minted.
	RefreshOK RefreshOutcome = iota
	// RefreshGrantMissing means no provider refresh credential is on file.
	RefreshGrantMissing
	// RefreshGrantRejected means the provider refused the stored credential.
	RefreshGrantRejected
	// RefreshProviderUnavailable means the provider could not be consulted.
	RefreshProviderUnavailable
	// RefreshInternalError covers mint and storage failures.
	RefreshInternalError
)

// Unavailable reports whether the caller's only recovery is re-authentication.
// Grant-missing and grant-rejected collapse into one client-visible answer;
// they stay distinct in logs and metrics.
func (outcome RefreshOutcome) Unavailable() bool {
	return outcome == RefreshGrantMissing || outcome == RefreshGrantRejected
}

// RefreshResult carries either the minted token or failure metadata.
type RefreshResult struct {
	Outcome   RefreshOutcome
	Token     string
	ExpiresAt time.Time
	Err       error
}

// RefreshService exchanges a subject's stored provider refresh credential for
// a new local token.
type RefreshService struct {
	grants     GrantStore
	provider   ProviderClient
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	clock      Clock
	logger     *zap.Logger
	metrics    MetricsRecorder

	subjectLocks sync.Map
}

// NewRefreshService constructs a RefreshService.
func NewRefreshService(configuration ServerConfig, grants GrantStore, provider ProviderClient, clock Clock, logger *zap.Logger, metrics MetricsRecorder) *RefreshService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshService{
		grants:     grants,
		provider:   provider,
		signingKey: configuration.TokenSigningKey,
		issuer:     configuration.TokenIssuer,
		tokenTTL:   configuration.TokenTTL,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Refresh looks up the subject's grant, exchanges it with the identity
// provider, and mints a new token. Calls for the same subject are serialized;
// calls for different subjects proceed concurrently.
func (service *RefreshService) Refresh(ctx context.Context, subjectID string) RefreshResult {
	subjectLock := service.lockFor(subjectID)
	subjectLock.Lock()
	defer subjectLock.Unlock()

	grant, lookupErr := service.grants.Lookup(ctx, subjectID)
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrGrantNotFound) {
			service.record(MetricRefreshGrantMissing)
			service.logger.Warn("refresh denied",
				zap.String("code", "refresh_service.grant_missing"),
				zap.String("subject_id", subjectID))
			return RefreshResult{Outcome: RefreshGrantMissing, Err: lookupErr}
		}
		service.logger.Error("grant lookup failed",
			zap.String("code", "refresh_service.grant_lookup"),
			zap.String("subject_id", subjectID),
			zap.Error(lookupErr))
		return RefreshResult{Outcome: RefreshInternalError, Err: lookupErr}
	}

	exchanged, exchangeErr := service.provider.ExchangeRefresh(ctx, grant)
	if exchangeErr != nil {
		if errors.Is(exchangeErr, ErrProviderRejected) {
			service.record(MetricRefreshGrantRejected)
			service.logger.Warn("refresh denied",
				zap.String("code", "refresh_service.grant_rejected"),
				zap.String("subject_id", subjectID))
			return RefreshResult{Outcome: RefreshGrantRejected, Err: exchangeErr}
		}
		service.record(MetricRefreshProviderDown)
		service.logger.Error("provider exchange failed",
			zap.String("code", "refresh_service.provider_unavailable"),
			zap.String("subject_id", subjectID),
			zap.Error(exchangeErr))
		return RefreshResult{Outcome: RefreshProviderUnavailable, Err: exchangeErr}
	}

	token, expiresAt, mintErr := MintToken(service.clock, subjectID, service.issuer, service.signingKey, service.tokenTTL)
	if mintErr != nil {
		service.logger.Error("token mint failed",
			zap.String("code", "refresh_service.mint"),
			zap.String("subject_id", subjectID),
			zap.Error(mintErr))
		return RefreshResult{Outcome: RefreshInternalError, Err: mintErr}
	}

	// The provider may rotate the refresh credential on every exchange.
	// Overwrite the stored grant when a new one came back; a reusing
	// provider makes this a no-op.
	if exchanged.RefreshCredential != "" && exchanged.RefreshCredential != grant {
		if saveErr := service.grants.Save(ctx, subjectID, exchanged.RefreshCredential); saveErr != nil {
			service.logger.Error("rotated grant save failed",
				zap.String("code", "refresh_service.grant_rotate"),
				zap.String("subject_id", subjectID),
				zap.Error(saveErr))
			return RefreshResult{Outcome: RefreshInternalError, Err: saveErr}
		}
	}

	service.record(MetricRefreshSuccess)
	service.logger.Info("token refreshed",
		zap.String("code", "refresh_service.success"),
		zap.String("subject_id", subjectID),
		zap.Time("expires_at", expiresAt))
	return RefreshResult{Outcome: RefreshOK, Token: token, ExpiresAt: expiresAt}
}

func (service *RefreshService) lockFor(subjectID string) *sync.Mutex {
	lockValue, _ := service.subjectLocks.LoadOrStore(subjectID, &sync.Mutex{})
	return lockValue.(*sync.Mutex)
}

func (service *RefreshService) record(event string) {
	if service.metrics != nil {
		service.metrics.Increment(event)
	}
}
