// Package auth authenticates inbound requests for the estateops platform.
//
// # Overview
//
// A request carries `Authorization: Bearer <token>`. The token is an HS256
// signed JWT whose claims describe the caller:
//
//	{sub, email, role, tenant_id, scopes: [string], type: "access"|"refresh", exp}
//
// The Codec issues and verifies these tokens. The Authenticator parses the
// header, verifies an access token, and yields a Principal.
//
// # Key Components
//
// Codec: signs and verifies tokens with a server secret
//
//	codec, err := auth.NewCodec(auth.CodecConfig{
//		Secret:    []byte(secret),
//		AccessTTL: 15 * time.Minute,
//	})
//	pair, err := codec.IssuePair(principal)
//	claims, err := codec.Verify(pair.AccessToken, auth.TokenAccess)
//
// Principal: the verified identity for a single request. Its fields are
// unexported and it is passed by value, so downstream code cannot mutate it.
//
// Roles and scopes are closed sets. Tokens naming an unknown role or scope
// are rejected as malformed.
//
// # Errors
//
//	ErrExpiredToken             now >= exp
//	ErrMalformedToken           bad signature, bad algorithm, missing or unknown claims
//	ErrWrongTokenKind           refresh token where an access token is expected (or vice versa)
//	ErrMissingCredential        no Authorization header
//	ErrInvalidCredentialScheme  header is not "Bearer <token>"
//	ErrUnauthorized             wraps every codec failure seen by the Authenticator
package auth
