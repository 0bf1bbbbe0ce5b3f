package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the smallest HMAC secret the codec accepts (256 bits)
const MinSecretLength = 32

var (
	ErrExpiredToken   = errors.New("token expired")
	ErrMalformedToken = errors.New("malformed token")
	ErrWrongTokenKind = errors.New("wrong token kind")
)

// Claims is the wire form of a signed identity token
type Claims struct {
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
	TenantID string    `json:"tenant_id"`
	Scopes   []Scope   `json:"scopes"`
	Kind     TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// Principal converts verified claims into a Principal.
// Missing subject, email, role or tenant is a malformed token.
func (c Claims) Principal() (Principal, error) {
	return NewPrincipal(c.Subject, c.Email, c.Role, c.TenantID, c.Scopes)
}

// ClaimsFor builds unsigned claims for a principal
func ClaimsFor(p Principal, kind TokenKind) Claims {
	return Claims{
		Email:    p.email,
		Role:     p.role,
		TenantID: p.tenantID,
		Scopes:   p.Scopes(),
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: p.subject,
		},
	}
}

// CodecConfig configures token signing
type CodecConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// CodecOption customizes a Codec
type CodecOption func(*Codec)

// WithClock overrides the time source used for issuing and verifying
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// Codec issues and verifies HS256 identity tokens.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewCodec creates a codec from the given configuration
func NewCodec(cfg CodecConfig, opts ...CodecOption) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}

	c := &Codec{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs the claims. Expiry, issued-at, issuer and token id are
// filled in when absent.
func (c *Codec) Issue(claims Claims) (string, error) {
	if !claims.Kind.Valid() {
		return "", fmt.Errorf("%w: token type %q is not recognised", ErrMalformedToken, claims.Kind)
	}
	if _, err := claims.Principal(); err != nil {
		return "", err
	}

	now := c.now().UTC()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl(claims.Kind)))
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.Issuer == "" {
		claims.Issuer = c.issuer
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// TokenPair is returned to clients after login or refresh
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	TokenType        string    `json:"token_type"`
}

// IssuePair issues an access token and a refresh token for p
func (c *Codec) IssuePair(p Principal) (TokenPair, error) {
	now := c.now().UTC()
	access := ClaimsFor(p, TokenAccess)
	access.ExpiresAt = jwt.NewNumericDate(now.Add(c.accessTTL))
	refresh := ClaimsFor(p, TokenRefresh)
	refresh.ExpiresAt = jwt.NewNumericDate(now.Add(c.refreshTTL))

	accessToken, err := c.Issue(access)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := c.Issue(refresh)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  access.ExpiresAt.Time,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refresh.ExpiresAt.Time,
		TokenType:        "Bearer",
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
// Access tokens are rejected with ErrWrongTokenKind.
func (c *Codec) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := c.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	p, err := claims.Principal()
	if err != nil {
		return TokenPair{}, err
	}

	access := ClaimsFor(p, TokenAccess)
	access.ExpiresAt = jwt.NewNumericDate(c.now().UTC().Add(c.accessTTL))
	accessToken, err := c.Issue(access)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:     accessToken,
		AccessExpiresAt: access.ExpiresAt.Time,
		TokenType:       "Bearer",
	}, nil
}

// Verify checks, in order, the signature, the expiry, the token kind and
// the required claims. Claims are only returned when every check passes.
func (c *Codec) Verify(raw string, want TokenKind) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	validatorOpts := []jwt.ParserOption{
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		validatorOpts = append(validatorOpts, jwt.WithIssuer(c.issuer))
	}
	if err := jwt.NewValidator(validatorOpts...).Validate(claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !claims.Kind.Valid() {
		return Claims{}, fmt.Errorf("%w: token type %q is not recognised", ErrMalformedToken, claims.Kind)
	}
	if claims.Kind != want {
		return Claims{}, fmt.Errorf("%w: expected %s token, got %s", ErrWrongTokenKind, want, claims.Kind)
	}

	if _, err := claims.Principal(); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (c *Codec) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return c.secret, nil
}

func (c *Codec) ttl(kind TokenKind) time.Duration {
	if kind == TokenRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}
