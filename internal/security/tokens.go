package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed or invalid.
var ErrInvalidToken = errors.New("invalid token")

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims are the JWT claims of Koursa access and refresh tokens. Subject is the decimal user id.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string   `json:"token_type"`
	Roles     []string `json:"roles,omitempty"`
}

// UserID parses Subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// TokenProvider issues and validates JWT access and refresh tokens using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IssueAccess issues a short-lived access JWT carrying the user's role names.
func (p *TokenProvider) IssueAccess(userID int64, roles []string) (token string, expiresAt time.Time, err error) {
	token, _, expiresAt, err = p.issue(tokenTypeAccess, userID, roles, p.accessTTL)
	return token, expiresAt, err
}

// IssueRefresh issues a long-lived refresh JWT. The jti lets the caller revoke it.
func (p *TokenProvider) IssueRefresh(userID int64) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(tokenTypeRefresh, userID, nil, p.refreshTTL)
}

func (p *TokenProvider) issue(typ string, userID int64, roles []string, ttl time.Duration) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := p.now()
	expiresAt = now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenType: typ,
		Roles:     roles,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	return jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
}

// ValidateAccess parses and validates an access token (signature, exp, iss, aud, token_type).
func (p *TokenProvider) ValidateAccess(tokenString string) (*Claims, error) {
	return p.validate(tokenString, tokenTypeAccess)
}

// ValidateRefresh parses and validates a refresh token. A valid access token is rejected.
func (p *TokenProvider) ValidateRefresh(tokenString string) (*Claims, error) {
	return p.validate(tokenString, tokenTypeRefresh)
}

func (p *TokenProvider) validate(tokenString, typ string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != typ {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature. The client holds no
// key, so this only schedules a refresh; the backend still verifies the token. ok is false for
// opaque tokens or tokens without exp.
func TokenExpiry(tokenString string) (expiresAt time.Time, ok bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
