package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/reurl/reurl/internal/model"
)

const testSecret = "test-secret-that-is-long-enough"

func signHS256(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validClaims(sub string) Claims {
	return Claims{
		Email: "owner@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "https://id.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestNewVerifier_KeySelection(t *testing.T) {
	t.Parallel()

	if _, err := NewVerifier(VerifierConfig{}); err == nil {
		t.Error("expected error without any key")
	}
	if _, err := NewVerifier(VerifierConfig{Secret: "a", PublicKeyPEM: "b"}); err == nil {
		t.Error("expected error with both keys")
	}
	if _, err := NewVerifier(VerifierConfig{PublicKeyPEM: "not pem"}); err == nil {
		t.Error("expected error for malformed public key")
	}
}

func TestVerifier_HS256(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier(VerifierConfig{Secret: testSecret, Issuer: "https://id.example.com"})
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}

	expired := validClaims("user_1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims("user_1")
	noExpiry.ExpiresAt = nil

	noSubject := validClaims("")

	otherIssuer := validClaims("user_1")
	otherIssuer.Issuer = "https://evil.example.com"

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"valid", signHS256(t, testSecret, validClaims("user_1")), nil},
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"wrong secret", signHS256(t, "other-secret", validClaims("user_1")), ErrInvalidToken},
		{"expired", signHS256(t, testSecret, expired), ErrInvalidToken},
		{"no expiry", signHS256(t, testSecret, noExpiry), ErrInvalidToken},
		{"no subject", signHS256(t, testSecret, noSubject), ErrInvalidToken},
		{"wrong issuer", signHS256(t, testSecret, otherIssuer), ErrInvalidToken},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := v.Verify(tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if claims.Subject != "user_1" || claims.Email != "owner@example.com" {
				t.Errorf("unexpected claims: %+v", claims)
			}
		})
	}
}

func TestVerifier_RS256(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	// Escaped newlines as they appear in a single-line env value.
	v, err := NewVerifier(VerifierConfig{PublicKeyPEM: strings.ReplaceAll(pemText, "\n", `\n`)})
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("user_rs")).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	claims, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "user_rs" {
		t.Errorf("Subject = %q, want user_rs", claims.Subject)
	}

	// An HS256 token must not pass an RS256 verifier.
	if _, err := v.Verify(signHS256(t, testSecret, validClaims("user_rs"))); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for algorithm mismatch, got %v", err)
	}
}

func TestUserContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if UserFromContext(ctx) != nil || UserIDFromContext(ctx) != "" {
		t.Fatal("empty context should carry no user")
	}

	ctx = ContextWithUser(ctx, &model.User{ID: "u-1", ExternalID: "user_1"})
	if got := UserIDFromContext(ctx); got != "u-1" {
		t.Errorf("UserIDFromContext = %q, want u-1", got)
	}
}
