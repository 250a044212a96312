package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Validator checks access tokens issued by the auth service and yields the
// caller's user id.
type Validator struct {
	alg    string
	pubKey *rsa.PublicKey
	secret []byte
}

// NewValidator builds a validator for RS256 (public key PEM on disk) or HS256
// (shared secret).
func NewValidator(alg, pubKeyPath, secret string) (*Validator, error) {
	switch alg {
	case "RS256":
		b, err := os.ReadFile(pubKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read pubkey: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, fmt.Errorf("parse pubkey: %w", err)
		}
		return NewRSAValidator(key), nil
	case "HS256":
		if secret == "" {
			return nil, errors.New("hs256 secret required")
		}
		return NewHMACValidator([]byte(secret)), nil
	default:
		return nil, fmt.Errorf("unsupported alg %q", alg)
	}
}

func NewRSAValidator(key *rsa.PublicKey) *Validator {
	return &Validator{alg: jwt.SigningMethodRS256.Alg(), pubKey: key}
}

func NewHMACValidator(secret []byte) *Validator {
	return &Validator{alg: jwt.SigningMethodHS256.Alg(), secret: secret}
}

func (v *Validator) key(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != v.alg {
		return nil, errors.New("unexpected signing method")
	}
	if v.pubKey != nil {
		return v.pubKey, nil
	}
	return v.secret, nil
}

// Validate returns the user id carried by token, preferring "user_id" over "sub".
func (v *Validator) Validate(token string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{v.alg}), jwt.WithExpirationRequired())
	tok, err := parser.ParseWithClaims(token, claims, v.key)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, domain.ErrUnauthenticated)
	}
	if !tok.Valid {
		return "", fmt.Errorf("invalid token: %w", domain.ErrUnauthenticated)
	}
	if uid, _ := claims["user_id"].(string); uid != "" {
		return uid, nil
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("missing user id in token: %w", domain.ErrUnauthenticated)
}

// ParseBearerToken extracts the token from an Authorization header value.
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing authorization: %w", domain.ErrUnauthenticated)
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("invalid authorization header: %w", domain.ErrUnauthenticated)
	}
	tok := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tok == "" {
		return "", fmt.Errorf("empty bearer token: %w", domain.ErrUnauthenticated)
	}
	return tok, nil
}
