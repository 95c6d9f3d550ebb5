package admin

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ScopeAdmin grants access to the /v1/admin routes and to remote image
	// references on the face routes
	ScopeAdmin = "facematch:admin"
	// ScopeClient grants access to the face routes with inline images only
	ScopeClient = "facematch:client"
)

var (
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when token is expired
	ErrExpiredToken = errors.New("token expired")
	// ErrInvalidClaims is returned when claims are invalid
	ErrInvalidClaims = errors.New("invalid claims")
	// ErrMissingSecret is returned when tokens are requested without a signing key
	ErrMissingSecret = errors.New("token secret not configured")
)

// OperatorClaims identify whoever runs admin operations such as regeneration
type OperatorClaims struct {
	Operator string `json:"operator"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 operator tokens
type TokenService struct {
	secretKey []byte
	issuer    string
	expiresIn time.Duration
	now       func() time.Time
}

func NewTokenService(secretKey, issuer string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

// Enabled reports whether a signing key is configured
func (s *TokenService) Enabled() bool {
	return s != nil && len(s.secretKey) > 0
}

// Issue signs a token for operator with the given scope
func (s *TokenService) Issue(operator, scope string) (string, error) {
	if !s.Enabled() {
		return "", ErrMissingSecret
	}

	now := s.now()
	claims := OperatorClaims{
		Operator: operator,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// Validate parses tokenString and checks signature, issuer and expiry
func (s *TokenService) Validate(tokenString string) (*OperatorClaims, error) {
	if !s.Enabled() {
		return nil, ErrMissingSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.Operator == "" {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}

// Authorize validates the token and requires scope
func (s *TokenService) Authorize(tokenString, scope string) (*OperatorClaims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != scope {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}
