package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenIssuer  = "pictureTeam"
	TokenSubject = "appUser"
)

// Identity is what a verified token proves about its bearer.
type Identity struct {
	UserID uuid.UUID `json:"id"`
	Admin  bool      `json:"admin"`
}

type Claims struct {
	jwt.RegisteredClaims
	User Identity `json:"user"`
}

// Tokens issues and validates HS256 bearer tokens signed with a single
// process-wide secret. Rotating the secret invalidates every outstanding
// token.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) Issue(id Identity) (string, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    TokenIssuer,
			Subject:   TokenSubject,
		},
		User: id,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, structure, issuer and expiry. Every failure
// is reported as ErrInvalidToken.
func (t *Tokens) Validate(tokenStr string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid || claims.User.UserID == uuid.Nil {
		return Identity{}, ErrInvalidToken
	}
	return claims.User, nil
}
