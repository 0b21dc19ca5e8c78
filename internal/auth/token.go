package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when a request carries no session token.
	ErrMissingToken = errors.New("missing session token")
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("invalid session token")
)

// Claims are the session token claims the service relies on.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// VerifierConfig selects the verification key and expected claims.
// Exactly one of Secret (HS256) or PublicKeyPEM (RS256) must be set.
type VerifierConfig struct {
	Secret       string
	PublicKeyPEM string
	Issuer       string
	Audience     string
	Leeway       time.Duration
}

// Verifier validates session tokens issued by the identity provider.
type Verifier struct {
	key    any
	parser *jwt.Parser
}

// NewVerifier builds a Verifier from cfg.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	var (
		key    any
		method string
	)

	switch {
	case cfg.Secret != "" && cfg.PublicKeyPEM != "":
		return nil, errors.New("configure either a shared secret or a public key, not both")
	case cfg.Secret != "":
		key = []byte(cfg.Secret)
		method = jwt.SigningMethodHS256.Alg()
	case cfg.PublicKeyPEM != "":
		// Env files often carry PEM blocks with escaped newlines.
		pemData := strings.ReplaceAll(cfg.PublicKeyPEM, `\n`, "\n")
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
		if err != nil {
			return nil, fmt.Errorf("parse identity public key: %w", err)
		}
		key = pub
		method = jwt.SigningMethodRS256.Alg()
	default:
		return nil, errors.New("no identity verification key configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{key: key, parser: jwt.NewParser(opts...)}, nil
}

// Verify parses and validates raw, returning its claims.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

