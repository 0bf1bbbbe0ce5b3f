package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", nil},
		{"lowercase scheme", "bearer abc", "abc", nil},
		{"empty", "", "", ErrMissingCredential},
		{"whitespace", "   ", "", ErrMissingCredential},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", ErrInvalidCredentialScheme},
		{"no token", "Bearer", "", ErrInvalidCredentialScheme},
		{"blank token", "Bearer   ", "", ErrInvalidCredentialScheme},
		{"token with spaces", "Bearer abc def", "", ErrInvalidCredentialScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBearer(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticator_Authenticate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, now)
	authn := NewAuthenticator(codec)
	p := testPrincipal(t)

	pair, err := codec.IssuePair(p)
	require.NoError(t, err)

	t.Run("access token", func(t *testing.T) {
		got, err := authn.Authenticate("Bearer " + pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		got, err := authn.Authenticate("Bearer " + pair.RefreshToken)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.ErrorIs(t, err, ErrWrongTokenKind)
		assert.True(t, got.IsZero())
	})

	t.Run("expired token", func(t *testing.T) {
		claims := ClaimsFor(p, TokenAccess)
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Second))
		token, err := codec.Issue(claims)
		require.NoError(t, err)

		_, err = authn.Authenticate("Bearer " + token)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := authn.Authenticate("")
		assert.ErrorIs(t, err, ErrMissingCredential)
		assert.NotErrorIs(t, err, ErrUnauthorized)
	})
}

func TestPrincipal(t *testing.T) {
	p := testPrincipal(t)

	assert.True(t, p.HasScope(ScopeRead))
	assert.False(t, p.HasScope(ScopeDelete))

	scopes := p.Scopes()
	scopes[0] = ScopeAdmin
	assert.False(t, p.HasScope(ScopeAdmin), "Scopes must return a copy")

	dup, err := NewPrincipal("u", "u@example.com", RoleAdmin, "t", []Scope{ScopeRead, ScopeRead})
	require.NoError(t, err)
	assert.Len(t, dup.Scopes(), 1)

	ctx := WithPrincipal(context.Background(), p)
	got, ok := PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, p, got)

	_, ok = PrincipalFromContext(context.Background())
	assert.False(t, ok)
}

func TestParseRoleAndScope(t *testing.T) {
	r, err := ParseRole("owner")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, r)

	_, err = ParseRole("hr")
	assert.Error(t, err)

	s, err := ParseScope("delete")
	require.NoError(t, err)
	assert.Equal(t, ScopeDelete, s)

	_, err = ParseScope("*")
	assert.Error(t, err)
}
