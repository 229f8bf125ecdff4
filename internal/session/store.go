// Package session tracks token revocation and last-activity state shared by
// every verification call. The backing fast store is Redis; when it is
// unreachable the package degrades to an in-process store with the same
// TTL semantics instead of failing requests.
package session

import (
	"context"
	"time"
)

// Store is the revocation and activity contract. Keys are token ids (jti);
// entries expire together with the token they describe.
type Store interface {
	// Blacklist marks a token id revoked until its natural expiry.
	Blacklist(ctx context.Context, jti string, expiresAt time.Time) error
	// IsBlacklisted reports whether the token id has been revoked.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
	// RecordActivity upserts the last-seen instant for the token id.
	RecordActivity(ctx context.Context, jti string, expiresAt time.Time) error
	// EnsureActivity initializes last-seen only when no entry exists yet.
	EnsureActivity(ctx context.Context, jti string, expiresAt time.Time) error
	// LastActivity returns the last-seen instant, if any.
	LastActivity(ctx context.Context, jti string) (time.Time, bool, error)
}

// IdleTimedOut reports whether the token id has been unused longer than the
// idle timeout. A zero or negative timeout disables the policy; a token with
// no recorded activity is not considered idle.
func IdleTimedOut(ctx context.Context, s Store, jti string, timeout time.Duration, now time.Time) (bool, error) {
	if timeout <= 0 {
		return false, nil
	}
	last, ok, err := s.LastActivity(ctx, jti)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return now.Sub(last) > timeout, nil
}

func ttlUntil(expiresAt time.Time, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
