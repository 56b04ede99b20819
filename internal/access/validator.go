package access

import (
	"crypto/subtle"
	"time"

	"github.com/nerrad567/garagegate/internal/door"
)

// Reason explains a validation decision.
type Reason string

// Decision reasons.
const (
	ReasonAccepted         Reason = "accepted"
	ReasonUnknownKind      Reason = "unknown_kind"
	ReasonUnknownSource    Reason = "unknown_source"
	ReasonBadToken         Reason = "bad_token"
	ReasonNotAuthorized    Reason = "plate_not_authorized"
	ReasonPlateMismatch    Reason = "plate_mismatch"
	ReasonStale            Reason = "stale_command"
	ReasonFromFuture       Reason = "future_command"
	ReasonMissingTimestamp Reason = "missing_timestamp"
)

// Decision is the validator's verdict on a command.
type Decision struct {
	Accepted bool
	Reason   Reason
}

func accept() Decision { return Decision{Accepted: true, Reason: ReasonAccepted} }
func reject(r Reason) Decision { return Decision{Reason: r} }

// Validator applies per-source trust rules. It holds no mutable state and
// is safe for concurrent use.
type Validator struct {
	secret []byte
	maxAge time.Duration
}

// NewValidator creates a Validator. sharedSecret authenticates network
// commands; maxAge bounds how far a network or vision command's
// timestamp may be from now.
func NewValidator(sharedSecret string, maxAge time.Duration) *Validator {
	return &Validator{secret: []byte(sharedSecret), maxAge: maxAge}
}

// Validate decides whether cmd may run. Rejection is a value; Validate
// never panics and never returns an error.
func (v *Validator) Validate(cmd door.Command, now time.Time) Decision {
	if !cmd.Kind.Valid() {
		return reject(ReasonUnknownKind)
	}

	switch cmd.Source {
	case door.SourceManual, door.SourceVoice, door.SourceTimer:
		return accept()

	case door.SourceNetwork:
		if !v.tokenMatches(cmd.Token) {
			return reject(ReasonBadToken)
		}
		return v.checkFreshness(cmd, now)

	case door.SourceVision:
		auth := cmd.Evidence.Authorization
		if auth == nil {
			return reject(ReasonNotAuthorized)
		}
		plate := CleanPlate(cmd.Evidence.Plate)
		if plate == "" || auth.PlateID != plate {
			return reject(ReasonPlateMismatch)
		}
		return v.checkFreshness(cmd, now)

	default:
		return reject(ReasonUnknownSource)
	}
}

func (v *Validator) checkFreshness(cmd door.Command, now time.Time) Decision {
	if cmd.Timestamp.IsZero() {
		return reject(ReasonMissingTimestamp)
	}
	age := now.Sub(cmd.Timestamp)
	if age > v.maxAge {
		return reject(ReasonStale)
	}
	if age < -v.maxAge {
		return reject(ReasonFromFuture)
	}
	return accept()
}

func (v *Validator) tokenMatches(token string) bool {
	return TokenMatches(token, v.secret)
}

// TokenMatches compares a presented token with the shared secret in
// constant time. An empty secret matches nothing.
func TokenMatches(token string, secret []byte) bool {
	if len(secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), secret) == 1
}
