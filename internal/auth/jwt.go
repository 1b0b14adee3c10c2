package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	Name string
	Key  []byte
	TTL  time.Duration
	now  func() time.Time
}

// NewIssuer creates an issuer; ttl defaults to 15 minutes.
func NewIssuer(name, key string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{Name: name, Key: []byte(key), TTL: ttl, now: time.Now}
}

// Issue signs an access token for the actor.
func (i *Issuer) Issue(actor Actor) (string, time.Time, error) {
	if actor.ID == "" {
		return "", time.Time{}, errors.New("subject required")
	}
	issuedAt := i.now()
	exp := issuedAt.Add(i.TTL)
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.Name,
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse validates a token and returns the actor it was issued for.
func (i *Issuer) Parse(tokenStr string) (Actor, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.Key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Actor{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Actor{}, errors.New("invalid token")
	}
	if i.Name != "" && claims.Issuer != i.Name {
		return Actor{}, errors.New("issuer mismatch")
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: claims.Subject, Role: role}, nil
}
