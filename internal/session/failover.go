package session

import (
	"context"
	"time"

	"schoolcore.org/internal/obs"
)

const defaultOpTimeout = 200 * time.Millisecond

// Failover routes Store operations to the shared Redis store and recovers in
// the in-process store when Redis misbehaves. A degraded operation is logged
// and counted, never surfaced to the request. Reads consult the local store
// as well, so a revocation that could only be written locally still holds for
// this process.
type Failover struct {
	primary   Store // nil when the startup probe already ruled Redis out
	local     *Memory
	opTimeout time.Duration
}

// NewFailover wires the degradation wrapper. primary may be nil.
func NewFailover(primary Store, local *Memory) *Failover {
	if local == nil {
		local = NewMemory(nil)
	}
	return &Failover{primary: primary, local: local, opTimeout: defaultOpTimeout}
}

func (f *Failover) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.opTimeout)
}

func (f *Failover) degraded(op string, err error) {
	obs.SessionFallback()
	obs.LogEntry(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": "warn",
		"msg":   "session store degraded",
		"op":    op,
		"error": err.Error(),
	})
}

// Blacklist writes through to the local store even when the primary write
// succeeds. A revocation recorded only in Redis would be forgotten by this
// process the moment Redis becomes unreachable, since IsBlacklisted swallows
// primary errors.
func (f *Failover) Blacklist(ctx context.Context, jti string, expiresAt time.Time) error {
	localErr := f.local.Blacklist(ctx, jti, expiresAt)
	if f.primary != nil {
		opCtx, cancel := f.withTimeout(ctx)
		err := f.primary.Blacklist(opCtx, jti, expiresAt)
		cancel()
		if err != nil {
			f.degraded("blacklist", err)
		}
	}
	return localErr
}

func (f *Failover) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if revoked, err := f.local.IsBlacklisted(ctx, jti); err == nil && revoked {
		return true, nil
	}
	if f.primary == nil {
		return false, nil
	}
	opCtx, cancel := f.withTimeout(ctx)
	defer cancel()
	revoked, err := f.primary.IsBlacklisted(opCtx, jti)
	if err != nil {
		f.degraded("is_blacklisted", err)
		return false, nil
	}
	return revoked, nil
}

func (f *Failover) RecordActivity(ctx context.Context, jti string, expiresAt time.Time) error {
	if f.primary != nil {
		opCtx, cancel := f.withTimeout(ctx)
		err := f.primary.RecordActivity(opCtx, jti, expiresAt)
		cancel()
		if err == nil {
			return nil
		}
		f.degraded("record_activity", err)
	}
	return f.local.RecordActivity(ctx, jti, expiresAt)
}

func (f *Failover) EnsureActivity(ctx context.Context, jti string, expiresAt time.Time) error {
	if f.primary != nil {
		opCtx, cancel := f.withTimeout(ctx)
		err := f.primary.EnsureActivity(opCtx, jti, expiresAt)
		cancel()
		if err == nil {
			return nil
		}
		f.degraded("ensure_activity", err)
	}
	return f.local.EnsureActivity(ctx, jti, expiresAt)
}

func (f *Failover) LastActivity(ctx context.Context, jti string) (time.Time, bool, error) {
	if f.primary != nil {
		opCtx, cancel := f.withTimeout(ctx)
		last, ok, err := f.primary.LastActivity(opCtx, jti)
		cancel()
		if err == nil && ok {
			return last, true, nil
		}
		if err != nil {
			f.degraded("last_activity", err)
		}
	}
	return f.local.LastActivity(ctx, jti)
}

var _ Store = (*Failover)(nil)
var _ Store = (*Memory)(nil)
var _ Store = (*Redis)(nil)
