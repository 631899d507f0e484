// Package tokens implements the RS256 JWT signer shared by the identity
// bootstrap's session tokens and the authorization server's minted
// access tokens (spec.md §1 "Local identity bootstrap", §4.5). Grounded
// on the teacher's internal/auth/token.go JWTProvider.
package tokens

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("tokens: invalid token")
	ErrExpiredToken = errors.New("tokens: token has expired")
)

// Claims is the custom claim set carried by both session tokens and
// OAuth access tokens minted by this platform.
type Claims struct {
	UserID   uuid.UUID `json:"sub"`
	TenantID uuid.UUID `json:"tid,omitempty"`
	Role     string    `json:"role,omitempty"`
	Scope    string    `json:"scope,omitempty"` // OAuth scope string, when this is an access token
	ClientID string    `json:"client_id,omitempty"`
	Kind     string    `json:"kind"` // "session" or "access_token"
	jwt.RegisteredClaims
}

// JWK and JWKS mirror the teacher's export shape for the JWKS endpoint.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Provider signs and verifies RS256 JWTs, addressed by a kid for JWKS
// lookups and future key rotation.
type Provider struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	kid        string
}

// NewProvider parses privateKeyPEM (PKCS1 or PKCS8) and constructs a
// Provider. A malformed key is a fatal configuration error: it panics,
// matching the teacher's NewJWTProvider, since there is no valid
// degraded mode for a signer with no key.
func NewProvider(privateKeyPEM, issuer, kid string) *Provider {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		panic("tokens: failed to parse PEM block containing the private key")
	}

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		key, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			panic(fmt.Sprintf("tokens: failed to parse private key: %v | %v", err, err2))
		}
		var ok bool
		priv, ok = key.(*rsa.PrivateKey)
		if !ok {
			panic("tokens: key is not of type *rsa.PrivateKey")
		}
	}

	return &Provider{
		privateKey: priv,
		publicKey:  &priv.PublicKey,
		issuer:     issuer,
		kid:        kid,
	}
}

// IssueSessionToken signs the teacher-style short-lived user session JWT.
func (p *Provider) IssueSessionToken(userID, tenantID uuid.UUID, role string, ttl time.Duration) (string, error) {
	return p.sign(Claims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Kind:     "session",
	}, ttl)
}

// IssueAccessToken signs an OAuth access token for C5's token endpoint.
// These are RS256 JWTs with Kind "access_token"; C6's credential
// classifier accepts only session-kind JWTs, so it rejects them.
func (p *Provider) IssueAccessToken(userID, tenantID uuid.UUID, clientID, scope string, ttl time.Duration) (string, error) {
	return p.sign(Claims{
		UserID:   userID,
		TenantID: tenantID,
		ClientID: clientID,
		Scope:    scope,
		Kind:     "access_token",
	}, ttl)
}

func (p *Provider) sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now.Add(-1 * time.Minute)), // clock skew
		NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Minute)),
		Issuer:    p.issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.kid
	signed, err := token.SignedString(p.privateKey)
	if err != nil {
		return "", fmt.Errorf("tokens: failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT minted by this Provider.
func (p *Provider) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("tokens: unexpected signing method: %v", t.Header["alg"])
		}
		return p.publicKey, nil
	}, jwt.WithIssuer(p.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// JWKS exports the public key as a JSON Web Key Set.
func (p *Provider) JWKS() JWKS {
	eBuf := big.NewInt(int64(p.publicKey.E)).Bytes()
	e := base64.RawURLEncoding.EncodeToString(eBuf)
	n := base64.RawURLEncoding.EncodeToString(p.publicKey.N.Bytes())

	return JWKS{Keys: []JWK{{
		Kty: "RSA",
		Kid: p.kid,
		Use: "sig",
		N:   n,
		E:   e,
		Alg: "RS256",
	}}}
}

// LooksLikeJWT is the cheap shape check C6's credential classifier uses
// before attempting a full parse: three dot-separated base64url segments.
func LooksLikeJWT(s string) bool {
	dots := 0
	for _, c := range s {
		if c == '.' {
			dots++
		}
	}
	return dots == 2
}
