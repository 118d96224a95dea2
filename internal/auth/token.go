package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims are the JWT claims carried by issued tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
	Team  string    `json:"team,omitempty"`
	Kind  TokenKind `json:"kind"`
}

// TokenIssuer creates and verifies signed, time-bound tokens.
type TokenIssuer interface {
	GenerateToken(userID string, kind TokenKind, claims Claims) (string, error)
	ParseToken(token string, kind TokenKind) (*Claims, error)
}

// JWTIssuer signs HS256 tokens with a shared secret.
type JWTIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTIssuer constructs a JWTIssuer.
func NewJWTIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration) *JWTIssuer {
	return &JWTIssuer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// GenerateToken signs a token of the given kind for userID. Registered
// claims set by the caller are overwritten.
func (i *JWTIssuer) GenerateToken(userID string, kind TokenKind, claims Claims) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("token subject is required")
	}
	ttl, err := i.ttl(kind)
	if err != nil {
		return "", err
	}

	now := i.now()
	claims.Kind = kind
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    i.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies signature, expiry and kind, and returns the claims.
func (i *JWTIssuer) ParseToken(tokenString string, kind TokenKind) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: unexpected kind %q", ErrInvalidToken, claims.Kind)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

func (i *JWTIssuer) ttl(kind TokenKind) (time.Duration, error) {
	switch kind {
	case TokenKindAccess:
		return i.accessTTL, nil
	case TokenKindRefresh:
		return i.refreshTTL, nil
	default:
		return 0, fmt.Errorf("unknown token kind %q", kind)
	}
}
