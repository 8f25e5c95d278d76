// Package auth issues and validates the bearer tokens API clients present.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/julianstephens/beaver/internal/constants"
	"github.com/julianstephens/beaver/internal/storage"
)

const (
	// MinSecretLength is the shortest accepted signing secret
	MinSecretLength = 32
	tokenTypeAPI    = "api"
)

var (
	ErrWeakSecret   = fmt.Errorf("token secret must be at least %d characters long", MinSecretLength)
	ErrInvalidToken = errors.New("invalid token")
)

type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and checks HS256 tokens with one secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &Issuer{secret: []byte(secret), now: time.Now}, nil
}

// GenerateToken creates a token for user that expires after ttl
// (constants.DefaultTokenTTL when ttl <= 0).
func (i *Issuer) GenerateToken(user storage.User, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = constants.DefaultTokenTTL
	}
	now := i.now()
	claims := Claims{
		UserID:    user.ID,
		Email:     user.Email,
		TokenType: tokenTypeAPI,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    constants.AppName,
			Subject:   user.Email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *Issuer) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(constants.AppName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.TokenType != tokenTypeAPI || claims.Email == "" {
			return nil, fmt.Errorf("%w: wrong token type", ErrInvalidToken)
		}
		return claims, nil
	}
	return nil, ErrInvalidToken
}
