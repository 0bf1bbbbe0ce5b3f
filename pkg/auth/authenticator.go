package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingCredential       = errors.New("missing credential")
	ErrInvalidCredentialScheme = errors.New("invalid credential scheme")
	ErrUnauthorized            = errors.New("unauthorized")
)

// Authenticator turns an Authorization header into a Principal
type Authenticator struct {
	codec *Codec
}

// NewAuthenticator creates an authenticator backed by codec
func NewAuthenticator(codec *Codec) *Authenticator {
	return &Authenticator{codec: codec}
}

// Authenticate parses "Bearer <token>" and verifies an access token.
// It returns either a complete Principal or an error, never both.
func (a *Authenticator) Authenticate(header string) (Principal, error) {
	token, err := ParseBearer(header)
	if err != nil {
		return Principal{}, err
	}

	claims, err := a.codec.Verify(token, TokenAccess)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	p, err := claims.Principal()
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return p, nil
}

// ParseBearer extracts the token from an Authorization header value
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredential
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidCredentialScheme
	}

	token := strings.TrimSpace(parts[1])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrInvalidCredentialScheme
	}
	return token, nil
}
