// Package resolver produces a token guaranteed fresh enough for immediate
// use. Every caller that needs authorization goes through Resolve; nothing
// reads credential storage directly.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jarvislab/authcore/internal/credstore"
)

var (
	// ErrAuthUnavailable is the terminal failure of the resolve chain:
	// interactive login failed or was cancelled. Callers must not proceed
	// with a stale or absent token.
	ErrAuthUnavailable = errors.New("resolver.auth_unavailable")

	// ErrRefreshUnavailable means the server reported that no usable provider
	// refresh credential exists. The stored record must not be retried; the
	// only recovery is re-authentication.
	ErrRefreshUnavailable = errors.New("resolver.refresh_unavailable")
)

// LoginResult is what a completed interactive login yields.
type LoginResult struct {
	Token                     string
	ProviderRefreshCredential string
	SubjectID                 string
}

// InteractiveLogin runs the user-facing login flow. It may block on the user
// and may be cancelled through the context.
type InteractiveLogin func(ctx context.Context) (LoginResult, error)

// RefreshClient exchanges the current token for a fresh one server-side.
// A server denial surfaces as ErrRefreshUnavailable; transport trouble
// surfaces as any other error.
type RefreshClient interface {
	Refresh(ctx context.Context, currentToken string) (string, error)
}

// Resolver orchestrates CredentialStore, the refresh endpoint, and
// interactive login into one strictly ordered fallback chain.
type Resolver struct {
	store   *credstore.CredentialStore
	refresh RefreshClient
	login   InteractiveLogin
	slack   time.Duration
	logger  *zap.Logger

	group singleflight.Group
}

// New constructs a Resolver. The slack defaults to five minutes when zero.
func New(store *credstore.CredentialStore, refresh RefreshClient, login InteractiveLogin, logger *zap.Logger) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("resolver.new: credential store is required")
	}
	if refresh == nil {
		return nil, fmt.Errorf("resolver.new: refresh client is required")
	}
	if login == nil {
		return nil, fmt.Errorf("resolver.new: interactive login is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:   store,
		refresh: refresh,
		login:   login,
		slack:   credstore.DefaultSlack,
		logger:  logger,
	}, nil
}

// Resolve returns a token fresh enough for immediate use. Concurrent calls
// are coalesced: callers arriving while a resolution is in flight wait for
// its result instead of starting a duplicate refresh or login prompt.
// Resolve may block on network I/O and on the user; never call it from a
// UI-blocking thread.
func (resolver *Resolver) Resolve(ctx context.Context) (string, error) {
	value, err, _ := resolver.group.Do("resolve", func() (any, error) {
		return resolver.resolveOnce(ctx)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// resolveOnce runs the chain: stored fast path, refresh, interactive login.
// Each terminal failure cascades to the next fallback, never to a retry of
// the same step, and login runs at most once per call.
func (resolver *Resolver) resolveOnce(ctx context.Context) (string, error) {
	record, present := resolver.store.Load(ctx)
	if present {
		if !resolver.store.IsExpiring(record.Token, resolver.slack) {
			return record.Token, nil
		}

		newToken, refreshErr := resolver.refresh.Refresh(ctx, record.Token)
		if refreshErr == nil {
			updated := credstore.StoredCredentialRecord{
				Token:                     newToken,
				ProviderRefreshCredential: record.ProviderRefreshCredential,
				SubjectID:                 record.SubjectID,
			}
			if saveErr := resolver.store.Save(ctx, updated); saveErr != nil {
				resolver.logger.Warn("refreshed token could not be persisted",
					zap.String("code", "resolver.refresh.save_failed"),
					zap.Error(saveErr))
			}
			return newToken, nil
		}
		if !errors.Is(refreshErr, ErrRefreshUnavailable) {
			// The server could not be consulted; the stored record may still
			// be usable later, so it is kept.
			return "", fmt.Errorf("%w: refresh transport failure: %v", ErrAuthUnavailable, refreshErr)
		}

		// The record is confirmed unusable. It must not be reused or
		// retried blindly.
		resolver.logger.Info("refresh unavailable; deleting stored record",
			zap.String("code", "resolver.refresh.unavailable"),
			zap.String("subject_id", record.SubjectID))
		if deleteErr := resolver.store.Delete(ctx); deleteErr != nil {
			resolver.logger.Warn("stale record delete failed",
				zap.String("code", "resolver.delete_failed"),
				zap.Error(deleteErr))
		}
	}

	return resolver.interactiveLogin(ctx)
}

func (resolver *Resolver) interactiveLogin(ctx context.Context) (string, error) {
	result, loginErr := resolver.login(ctx)
	if loginErr != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, loginErr)
	}
	record := credstore.StoredCredentialRecord{
		Token:                     result.Token,
		ProviderRefreshCredential: result.ProviderRefreshCredential,
		SubjectID:                 result.SubjectID,
	}
	if saveErr := resolver.store.Save(ctx, record); saveErr != nil {
		resolver.logger.Warn("login result could not be persisted",
			zap.String("code", "resolver.login.save_failed"),
			zap.Error(saveErr))
	}
	return result.Token, nil
}

// ForceReauth discards the stored record and runs the full chain again. The
// reconnect policy calls it after repeated hard rejections, so a token the
// server keeps refusing is never looped on.
func (resolver *Resolver) ForceReauth(ctx context.Context) (string, error) {
	value, err, _ := resolver.group.Do("resolve", func() (any, error) {
		if deleteErr := resolver.store.Delete(ctx); deleteErr != nil {
			resolver.logger.Warn("record delete failed during forced reauth",
				zap.String("code", "resolver.force_reauth.delete_failed"),
				zap.Error(deleteErr))
		}
		return resolver.resolveOnce(ctx)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}
