package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

var (
	ErrInvalidToken    = errors.New("auth: invalid token")
	ErrUnauthenticated = errors.New("auth: authentication required")
	ErrForbidden       = errors.New("auth: insufficient permissions")
)

type Role string

const (
	RoleStaff  Role = "staff"
	RoleRenter Role = "renter"
	RoleAdmin  Role = "admin"
)

// Principal is the authenticated caller. Subject is the staff or renter id handed to the
// core as staffId/callerId.
type Principal struct {
	Subject string
	Roles   []Role
}

// HasRole treats admin as holding every role.
func (p Principal) HasRole(role Role) bool {
	role = Role(strings.ToLower(strings.TrimSpace(string(role))))
	if role == "" {
		return false
	}
	for _, r := range p.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

type TokenVerifier interface {
	Verify(token string) (Principal, error)
}

type Service struct {
	Tokens TokenVerifier
	Logger *slog.Logger
}

func (s *Service) ResolveToken(ctx context.Context, token string) (Principal, error) {
	if s.Tokens == nil || strings.TrimSpace(token) == "" {
		return Principal{}, ErrUnauthenticated
	}
	p, err := s.Tokens.Verify(token)
	if err != nil {
		if s.Logger != nil {
			s.Logger.DebugContext(ctx, "token rejected", "error", err)
		}
		return Principal{}, ErrInvalidToken
	}
	if p.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

type principalKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// RoleRequirer is implemented by commands and queries restricted to some roles.
type RoleRequirer interface {
	RequiredRoles() []Role
}

// RoleAuthorizer checks RoleRequirer messages against the principal in context. Other
// messages pass through.
type RoleAuthorizer struct{}

func (RoleAuthorizer) Authorize(ctx context.Context, message any) error {
	req, ok := message.(RoleRequirer)
	if !ok {
		return nil
	}
	roles := req.RequiredRoles()
	if len(roles) == 0 {
		return nil
	}
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	for _, role := range roles {
		if p.HasRole(role) {
			return nil
		}
	}
	return ErrForbidden
}
