// Package auth issues and verifies the bearer tokens the gateway requires
// on every mutating command (start, stop, reset, maintenance toggles).
// There's no end-user account system in this domain — operators are
// configured statically, not stored in a database.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnknownOperator = errors.New("unknown operator")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
)

// Operator is one statically configured shop operator, loaded from config
// at startup.
type Operator struct {
	ID           string
	PasswordHash string
	Permissions  []string
}

// Claims is the JWT payload issued to an authenticated operator.
type Claims struct {
	OperatorID  string   `json:"operator_id"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and verifies operator bearer tokens.
type Service struct {
	jwtSecret []byte
	operators map[string]Operator
	ttl       time.Duration
}

// NewService builds a Service over a fixed operator set.
func NewService(jwtSecret string, operators []Operator, ttl time.Duration) *Service {
	byID := make(map[string]Operator, len(operators))
	for _, op := range operators {
		byID[op.ID] = op
	}
	return &Service{jwtSecret: []byte(jwtSecret), operators: byID, ttl: ttl}
}

// Authenticate checks a pre-hashed password against the configured
// operator set and issues a signed token on success.
func (s *Service) Authenticate(operatorID, passwordHash string) (string, error) {
	op, ok := s.operators[operatorID]
	if !ok {
		return "", ErrUnknownOperator
	}
	if op.PasswordHash != passwordHash {
		return "", ErrInvalidPassword
	}

	claims := &Claims{
		OperatorID:  op.ID,
		Permissions: op.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// VerifyToken parses and validates a bearer token, stripping an optional
// "Bearer " prefix.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// HasPermission reports whether the claims grant a given permission.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
