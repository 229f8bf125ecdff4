package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"schoolcore.org/internal/session"
)

// Service owns the session lifecycle: credential login, refresh rotation and
// logout revocation.
type Service struct {
	codec    *Codec
	verifier *Verifier
	resolver *Resolver
	dir      Directory
	sessions session.Store
	now      func() time.Time
}

// NewService wires the lifecycle service.
func NewService(codec *Codec, verifier *Verifier, resolver *Resolver, dir Directory, sessions session.Store, now func() time.Time) (*Service, error) {
	if codec == nil || verifier == nil || resolver == nil || dir == nil || sessions == nil {
		return nil, errors.New("auth: service dependencies are incomplete")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		codec:    codec,
		verifier: verifier,
		resolver: resolver,
		dir:      dir,
		sessions: sessions,
		now:      now,
	}, nil
}

// TokenPair is the issued credential set returned by login and refresh.
type TokenPair struct {
	AccessToken            string `json:"access_token"`
	RefreshToken           string `json:"refresh_token"`
	TokenType              string `json:"token_type"`
	RequiresPasswordChange bool   `json:"requires_password_change"`
}

// Login authenticates credentials and issues a fresh token pair. tenantHint
// is advisory pre-auth input; after login the tenant identity comes solely
// from the issued claims.
func (s *Service) Login(ctx context.Context, tenantHint, login, password string) (TokenPair, Principal, error) {
	login = strings.TrimSpace(strings.ToLower(login))
	if login == "" || password == "" {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}

	user, err := s.dir.FindUserByLogin(ctx, strings.TrimSpace(tenantHint), login)
	if err != nil {
		// Same rejection for unknown user and lookup fault.
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	if !user.Active {
		return TokenPair{}, Principal{}, ErrInactiveAccount
	}

	roles, err := s.dir.RolesForUser(ctx, user.ID)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	perms, err := s.dir.PermissionsForUser(ctx, user.ID)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	principal := NewPrincipal(user, roles, perms)

	pair, err := s.mint(principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	pair.RequiresPasswordChange = s.requiresPasswordChange(user)
	return pair, principal, nil
}

// Refresh verifies a refresh token, rotates it and issues a new pair. The
// presented token's jti is blacklisted so it cannot be replayed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, Principal, error) {
	claims, err := s.verifier.Verify(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeRefresh {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}

	principal, err := s.resolver.Resolve(ctx, claims)
	if err != nil {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}

	// Rotation: the old refresh token dies with this exchange. Revocation is
	// recovered locally on store degradation, so this does not fail the
	// request.
	_ = s.sessions.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time)

	pair, err := s.mint(principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, principal, nil
}

// Logout blacklists the presented token best-effort. It always succeeds from
// the caller's perspective, even for tokens that were never valid.
func (s *Service) Logout(ctx context.Context, token string) {
	claims, err := s.codec.DecodeExpired(token)
	if err != nil {
		return
	}
	_ = s.sessions.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time)
}

func (s *Service) mint(principal Principal) (TokenPair, error) {
	subject := principal.User.ID
	tenantID := principal.TenantID()
	isSuper := principal.IsSuperAdmin()

	access, _, err := s.codec.IssueAccess(subject, tenantID, isSuper)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.codec.IssueRefresh(subject, tenantID, isSuper)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

func (s *Service) requiresPasswordChange(user *User) bool {
	if user.FirstLogin {
		return true
	}
	if user.PasswordExpiresAt != nil && !user.PasswordExpiresAt.After(s.now()) {
		return true
	}
	return false
}
