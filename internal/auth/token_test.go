package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer() *JWTIssuer {
	return NewJWTIssuer("super-secret", "teamboard", 15*time.Minute, 24*time.Hour)
}

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer()
	tok, err := issuer.GenerateToken("user-123", TokenKindAccess, Claims{Email: "test@example.com", Role: "user", Team: "Team A"})
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	claims, err := issuer.ParseToken(tok, TokenKindAccess)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Fatalf("subject mismatch: got %q want %q", claims.Subject, "user-123")
	}
	if claims.Email != "test@example.com" || claims.Team != "Team A" || claims.Role != "user" {
		t.Fatalf("custom claims not preserved: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", claims.ExpiresAt)
	}
}

func TestGenerateToken_UniquePerCall(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer()
	first, err := issuer.GenerateToken("u1", TokenKindRefresh, Claims{})
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	second, err := issuer.GenerateToken("u1", TokenKindRefresh, Claims{})
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct tokens for consecutive calls")
	}
}

func TestGenerateToken_RequiresSubject(t *testing.T) {
	t.Parallel()

	if _, err := newTestIssuer().GenerateToken(" ", TokenKindAccess, Claims{}); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestGenerateToken_UnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := newTestIssuer().GenerateToken("u1", TokenKind("session"), Claims{}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestParseToken_Expired(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer()
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := issuer.GenerateToken("u1", TokenKindAccess, Claims{})
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	issuer.now = time.Now
	_, err = issuer.ParseToken(tok, TokenKindAccess)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseToken_WrongKind(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer()
	tok, err := issuer.GenerateToken("u1", TokenKindRefresh, Claims{})
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = issuer.ParseToken(tok, TokenKindAccess)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh token used as access, got %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewJWTIssuer("right-secret", "teamboard", time.Minute, time.Hour).GenerateToken("u2", TokenKindAccess, Claims{})
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = NewJWTIssuer("wrong-secret", "teamboard", time.Minute, time.Hour).ParseToken(tok, TokenKindAccess)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_WrongIssuer(t *testing.T) {
	t.Parallel()

	tok, err := NewJWTIssuer("secret", "someone-else", time.Minute, time.Hour).GenerateToken("u3", TokenKindAccess, Claims{})
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := NewJWTIssuer("secret", "teamboard", time.Minute, time.Hour).ParseToken(tok, TokenKindAccess); err == nil {
		t.Fatal("expected error for foreign issuer")
	}
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u4",
			Issuer:    "teamboard",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Kind: TokenKindAccess,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	if _, err := newTestIssuer().ParseToken(tok, TokenKindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_MalformedString(t *testing.T) {
	t.Parallel()

	if _, err := newTestIssuer().ParseToken("not.a.jwt", TokenKindAccess); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
