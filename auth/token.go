package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL matches the session length the mobile client expects.
const DefaultTTL = 30 * time.Minute

var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload. Client distinguishes the web UI from the
// mobile booking client, which is gated per role.
type Claims struct {
	UserID string `json:"uid"`
	Login  string `json:"login"`
	RoleID string `json:"role"`
	Client string `json:"client,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 tokens.
type TokenIssuer struct {
	Secret []byte
	TTL    time.Duration
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{Secret: []byte(secret), TTL: DefaultTTL}
}

// Issue signs a token for the given identity.
func (t *TokenIssuer) Issue(userID, login, roleID, client string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		Login:  login,
		RoleID: roleID,
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl())),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

// Parse verifies the signature and expiry, returning the claims.
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func (t *TokenIssuer) ttl() time.Duration {
	if t.TTL > 0 {
		return t.TTL
	}
	return DefaultTTL
}
