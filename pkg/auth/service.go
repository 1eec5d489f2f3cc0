package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenInvalid = errors.New("token is invalid")

type Service interface {
	Sign(userId string) (tokenString string, expiresIn time.Duration, expiresAt time.Time, err error)
	Parse(tokenString string) (string, error)
}

type service struct {
	signingMethod   jwt.SigningMethod
	privateKey      interface{}
	publicKey       interface{}
	issuer          string
	audience        string
	sessionDuration time.Duration
	now             func() time.Time
}

func NewService(
	method jwt.SigningMethod,
	privateKey interface{},
	publicKey interface{},
	issuer string,
	audience string,
	sessionDuration time.Duration,
) Service {
	return &service{
		signingMethod:   method,
		privateKey:      privateKey,
		publicKey:       publicKey,
		issuer:          issuer,
		audience:        audience,
		sessionDuration: sessionDuration,
		now:             time.Now,
	}
}

func (s *service) Sign(userId string) (tokenString string, expiresIn time.Duration, expiresAt time.Time, err error) {
	now := s.now()
	expiresIn = s.sessionDuration
	expiresAt = now.Add(expiresIn)
	token := jwt.NewWithClaims(s.signingMethod, &Claims{
		UserId: userId,
		RegisteredClaims: &jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userId,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	tokenString, err = token.SignedString(s.privateKey)
	if err != nil {
		return "", expiresIn, expiresAt, err
	}
	return tokenString, expiresIn, expiresAt, nil
}

func (s *service) Parse(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != s.signingMethod.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.publicKey, nil
		},
		jwt.WithIssuedAt(),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{s.signingMethod.Alg()}),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if !token.Valid {
		return "", ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type: %T", token.Claims)
	}
	if len(claims.UserId) == 0 {
		return "", fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}

	return claims.UserId, nil
}
