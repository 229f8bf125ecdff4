package auth

import (
	"context"
	"time"

	"schoolcore.org/internal/session"
)

// Verifier composes the token codec with the revocation and activity store.
// Every step must pass; any unexpected fault is a verification failure,
// never a skipped check.
type Verifier struct {
	codec       *Codec
	sessions    session.Store
	idleTimeout time.Duration
	now         func() time.Time
}

// NewVerifier builds a verifier. idleTimeout of zero disables idle
// enforcement entirely.
func NewVerifier(codec *Codec, sessions session.Store, idleTimeout time.Duration, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{codec: codec, sessions: sessions, idleTimeout: idleTimeout, now: now}
}

// Verify decodes the token and checks expiry, revocation and idle state. An
// idle-timed-out access token is additionally blacklisted so future checks
// fail fast.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := v.codec.Decode(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	now := v.now()
	if !claims.ExpiresAt.Time.After(now) {
		return nil, ErrInvalidToken
	}

	revoked, err := v.sessions.IsBlacklisted(ctx, claims.ID)
	if err != nil || revoked {
		return nil, ErrInvalidToken
	}

	if claims.TokenType == TokenTypeAccess && v.idleTimeout > 0 {
		if err := v.sessions.EnsureActivity(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return nil, ErrInvalidToken
		}
		idle, err := session.IdleTimedOut(ctx, v.sessions, claims.ID, v.idleTimeout, now)
		if err != nil {
			return nil, ErrInvalidToken
		}
		if idle {
			_ = v.sessions.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time)
			return nil, ErrInvalidToken
		}
	}

	return claims, nil
}

// Touch records that the token was just used, feeding the idle-timeout
// policy. Called after a request was served, not during verification.
func (v *Verifier) Touch(ctx context.Context, claims *Claims) {
	if claims == nil || v.idleTimeout <= 0 {
		return
	}
	_ = v.sessions.RecordActivity(ctx, claims.ID, claims.ExpiresAt.Time)
}

// IdleEnforced reports whether the idle-timeout policy is active.
func (v *Verifier) IdleEnforced() bool {
	return v.idleTimeout > 0
}
