// Package wsgate authorizes the long-lived streaming connection at handshake
// time. Classification is a pure check performed once per connection attempt;
// retry policy lives entirely with the client.
package wsgate

import (
	"errors"

	"github.com/jarvislab/authcore/pkg/tokenvalidator"
)

// RejectReason enumerates the distinct ways a connection attempt can be
// refused.
type RejectReason int

const (
	// ReasonMissing means no token was presented.
	ReasonMissing RejectReason = iota + 1
	// ReasonInvalidSignature means signature verification failed.
	ReasonInvalidSignature
	// ReasonMalformedClaims means the token parsed but its claims are unusable.
	ReasonMalformedClaims
	// ReasonExpired means the token is valid but past its expiry.
	ReasonExpired
)

// WebSocket close codes in the private range, one per rejection reason. The
// client reacts to expiry differently from structural problems, so a generic
// close code is never used.
const (
	CloseCodeMissing          = 4001
	CloseCodeInvalidSignature = 4002
	CloseCodeMalformedClaims  = 4003
	CloseCodeExpired          = 4004
)

// CloseCode maps the reason to its transport close code.
func (reason RejectReason) CloseCode() int {
	switch reason {
	case ReasonMissing:
		return CloseCodeMissing
	case ReasonInvalidSignature:
		return CloseCodeInvalidSignature
	case ReasonMalformedClaims:
		return CloseCodeMalformedClaims
	case ReasonExpired:
		return CloseCodeExpired
	default:
		return CloseCodeMalformedClaims
	}
}

// String names the reason for logs and close frames.
func (reason RejectReason) String() string {
	switch reason {
	case ReasonMissing:
		return "missing"
	case ReasonInvalidSignature:
		return "invalid_signature"
	case ReasonMalformedClaims:
		return "malformed_claims"
	case ReasonExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Decision is the per-attempt outcome of the gate. It is never persisted.
type Decision struct {
	Accepted  bool
	SubjectID string
	Reason    RejectReason
}

// Gate classifies connection attempts.
type Gate struct {
	validator *tokenvalidator.Validator
}

// NewGate constructs a Gate around the token validator.
func NewGate(validator *tokenvalidator.Validator) *Gate {
	return &Gate{validator: validator}
}

// Classify runs the single Connecting transition: missing, then signature,
// then claim shape, then expiry, then accept.
func (gate *Gate) Classify(tokenString string) Decision {
	if tokenString == "" {
		return Decision{Reason: ReasonMissing}
	}
	claims, validateErr := gate.validator.ValidateToken(tokenString)
	if validateErr != nil {
		switch {
		case errors.Is(validateErr, tokenvalidator.ErrMissingToken):
			return Decision{Reason: ReasonMissing}
		case errors.Is(validateErr, tokenvalidator.ErrInvalidSignature):
			return Decision{Reason: ReasonInvalidSignature}
		case errors.Is(validateErr, tokenvalidator.ErrTokenExpired):
			return Decision{Reason: ReasonExpired}
		default:
			return Decision{Reason: ReasonMalformedClaims}
		}
	}
	return Decision{Accepted: true, SubjectID: claims.GetSubjectID()}
}
