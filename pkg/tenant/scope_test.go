package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/estateops/pkg/auth"
)

func principalFor(t *testing.T, tenantID string) auth.Principal {
	t.Helper()
	p, err := auth.NewPrincipal("user-1", "user@example.com", auth.RoleEmployee, tenantID, []auth.Scope{auth.ScopeRead})
	require.NoError(t, err)
	return p
}

func TestResolve(t *testing.T) {
	id := uuid.New()

	t.Run("valid tenant", func(t *testing.T) {
		scope, err := Resolve(principalFor(t, id.String()))
		require.NoError(t, err)
		assert.Equal(t, id, scope.ID())
		assert.Equal(t, id.String(), scope.String())
		assert.False(t, scope.IsZero())
	})

	t.Run("malformed tenant", func(t *testing.T) {
		for _, bad := range []string{"acme", "12345", "6f1c1f0e-8a51-4a49-9a3c", uuid.Nil.String()} {
			_, err := Resolve(principalFor(t, bad))
			assert.ErrorIs(t, err, ErrInvalidTenantID, bad)
		}
	})

	t.Run("zero principal", func(t *testing.T) {
		_, err := Resolve(auth.Principal{})
		assert.ErrorIs(t, err, ErrInvalidTenantID)
	})
}

func TestScope_Check(t *testing.T) {
	a, err := FromID(uuid.New())
	require.NoError(t, err)
	b := uuid.New()

	assert.NoError(t, a.Check(a.ID()))
	assert.ErrorIs(t, a.Check(b), ErrCrossTenant)
	assert.ErrorIs(t, Scope{}.Check(uuid.Nil), ErrCrossTenant)

	_, err = FromID(uuid.Nil)
	assert.ErrorIs(t, err, ErrInvalidTenantID)
}

func TestContext(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoTenant)

	scope, err := Parse(uuid.NewString())
	require.NoError(t, err)

	got, err := FromContext(WithScope(context.Background(), scope))
	require.NoError(t, err)
	assert.Equal(t, scope, got)
}
