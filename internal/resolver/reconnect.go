package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jarvislab/authcore/internal/wsgate"
)

// DialFunc opens the streaming connection with the given token. A rejection
// at the gate surfaces as a *websocket.CloseError carrying the gate's close
// code.
type DialFunc func(ctx context.Context, token string) (*websocket.Conn, error)

// Reconnector applies the client-side retry policy for the streaming
// connection. The gate itself never retries; all policy lives here.
type Reconnector struct {
	resolver *Resolver
	dial     DialFunc
	logger   *zap.Logger
}

// NewReconnector constructs a Reconnector.
func NewReconnector(resolver *Resolver, dial DialFunc, logger *zap.Logger) (*Reconnector, error) {
	if resolver == nil {
		return nil, fmt.Errorf("reconnector.new: resolver is required")
	}
	if dial == nil {
		return nil, fmt.Errorf("reconnector.new: dial func is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconnector{resolver: resolver, dial: dial, logger: logger}, nil
}

// Connect resolves a token and dials. An Expired rejection triggers exactly
// one automatic re-resolution and reconnect. A second consecutive hard
// rejection (expired or invalid signature) stops automatic retrying and
// forces the full resolve chain, including possible interactive login,
// before one final attempt — the same stale token is never looped on.
// Every other rejection reason is surfaced without retry.
func (reconnector *Reconnector) Connect(ctx context.Context) (*websocket.Conn, error) {
	token, resolveErr := reconnector.resolver.Resolve(ctx)
	if resolveErr != nil {
		return nil, resolveErr
	}

	connection, dialErr := reconnector.dial(ctx, token)
	if dialErr == nil {
		return connection, nil
	}
	code, isRejection := rejectionCode(dialErr)
	if !isRejection {
		return nil, fmt.Errorf("reconnector.dial: %w", dialErr)
	}
	if code != wsgate.CloseCodeExpired {
		// Hard rejection on the first attempt: structurally wrong token.
		// Surfaced to the caller, who decides whether to force a logout.
		return nil, fmt.Errorf("reconnector.rejected: %w", dialErr)
	}

	reconnector.logger.Info("connection rejected as expired; re-resolving once",
		zap.String("code", "reconnector.expired_retry"))
	token, resolveErr = reconnector.resolver.Resolve(ctx)
	if resolveErr != nil {
		return nil, resolveErr
	}
	connection, dialErr = reconnector.dial(ctx, token)
	if dialErr == nil {
		return connection, nil
	}
	code, isRejection = rejectionCode(dialErr)
	if !isRejection {
		return nil, fmt.Errorf("reconnector.dial: %w", dialErr)
	}
	if code != wsgate.CloseCodeExpired && code != wsgate.CloseCodeInvalidSignature {
		return nil, fmt.Errorf("reconnector.rejected: %w", dialErr)
	}

	// Two consecutive hard rejections: the stored credential is not going to
	// start working on its own.
	reconnector.logger.Warn("consecutive hard rejections; forcing re-authentication",
		zap.String("code", "reconnector.force_reauth"),
		zap.Int("close_code", code))
	token, resolveErr = reconnector.resolver.ForceReauth(ctx)
	if resolveErr != nil {
		return nil, resolveErr
	}
	connection, dialErr = reconnector.dial(ctx, token)
	if dialErr != nil {
		return nil, fmt.Errorf("reconnector.rejected: %w", dialErr)
	}
	return connection, nil
}

func rejectionCode(err error) (int, bool) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, true
	}
	return 0, false
}
