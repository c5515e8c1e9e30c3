package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/app/services/auth"
)

type staffOnly struct{}

func (staffOnly) RequiredRoles() []auth.Role { return []auth.Role{auth.RoleStaff} }

type verifierFunc func(string) (auth.Principal, error)

func (f verifierFunc) Verify(token string) (auth.Principal, error) { return f(token) }

func TestRoleAuthorizer(t *testing.T) {
	var a auth.RoleAuthorizer
	ctx := context.Background()

	assert.NoError(t, a.Authorize(ctx, struct{}{}))
	assert.ErrorIs(t, a.Authorize(ctx, staffOnly{}), auth.ErrUnauthenticated)

	renter := auth.ContextWithPrincipal(ctx, auth.Principal{Subject: "r1", Roles: []auth.Role{auth.RoleRenter}})
	assert.ErrorIs(t, a.Authorize(renter, staffOnly{}), auth.ErrForbidden)

	staff := auth.ContextWithPrincipal(ctx, auth.Principal{Subject: "s1", Roles: []auth.Role{auth.RoleStaff}})
	assert.NoError(t, a.Authorize(staff, staffOnly{}))

	admin := auth.ContextWithPrincipal(ctx, auth.Principal{Subject: "a1", Roles: []auth.Role{auth.RoleAdmin}})
	assert.NoError(t, a.Authorize(admin, staffOnly{}))
}

func TestResolveToken(t *testing.T) {
	svc := &auth.Service{Tokens: verifierFunc(func(token string) (auth.Principal, error) {
		if token != "good" {
			return auth.Principal{}, errors.New("bad signature")
		}
		return auth.Principal{Subject: "s1", Roles: []auth.Role{auth.RoleStaff}}, nil
	})}

	p, err := svc.ResolveToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "s1", p.Subject)

	_, err = svc.ResolveToken(context.Background(), "forged")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = svc.ResolveToken(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}
