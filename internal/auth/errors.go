package auth

import "errors"

var (
	// ErrInvalidToken covers every authentication failure: bad signature,
	// malformed payload, expiry, revocation, idle timeout, unresolvable
	// principal. Callers must not leak which condition fired.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidCredentials is the generic login rejection. It deliberately
	// does not distinguish wrong password from unknown user.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInactiveAccount rejects logins for deactivated users.
	ErrInactiveAccount = errors.New("account is inactive")

	// ErrForbidden is wrapped with the specific missing requirement; policy
	// names are safe to disclose.
	ErrForbidden = errors.New("forbidden")

	// ErrTenantRequired rejects requests whose verified claims carry no
	// usable tenant on a tenant-scoped endpoint.
	ErrTenantRequired = errors.New("tenant scope required")

	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
	ErrInvalidInput = errors.New("invalid input")
)
