package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrBadPasscode = errors.New("invalid passcode")
	ErrInvalid     = errors.New("invalid token")
)

// Claims carries nothing but the faculty flag.
type Claims struct {
	Faculty bool `json:"faculty"`
	jwt.RegisteredClaims
}

// Token is a signed faculty token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Faculty issues and checks faculty tokens. With an empty passcode every
// request counts as faculty.
type Faculty struct {
	Passcode   string
	Issuer     string
	SigningKey string
	TTL        time.Duration
}

// Enabled reports whether faculty routes are protected.
func (f Faculty) Enabled() bool { return f.Passcode != "" }

// Login exchanges the shared passcode for a token.
func (f Faculty) Login(passcode string) (Token, error) {
	if !f.Enabled() {
		return Token{}, errors.New("faculty login disabled")
	}
	if subtle.ConstantTimeCompare([]byte(passcode), []byte(f.Passcode)) != 1 {
		return Token{}, ErrBadPasscode
	}
	return f.Issue()
}

// Issue signs a faculty token valid for TTL.
func (f Faculty) Issue() (Token, error) {
	now := time.Now()
	exp := now.Add(f.TTL)
	claims := Claims{
		Faculty: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    f.Issuer,
			Subject:   "faculty",
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(f.SigningKey))
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func (f Faculty) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(f.SigningKey), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || !claims.Faculty {
		return Claims{}, ErrInvalid
	}
	if f.Issuer != "" && claims.Issuer != f.Issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}
