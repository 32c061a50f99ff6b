// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrWrongSession is returned when a valid token was issued for another game.
var ErrWrongSession = errors.New("token does not grant access to this session")

// Issuer signs and verifies host tokens. A host token proves that the
// caller created a given signaling session and may delete it.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration // 0 => never expires
}

// NewIssuer generates a fresh ed25519 key pair at runtime.
func NewIssuer(ttl time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, ttl: ttl}, nil
}

// NewIssuerFromPath reads ed25519 private/public keys from file.
func NewIssuerFromPath(privatePath, publicPath string, ttl time.Duration) (*Issuer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 key size")
	}
	return &Issuer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		ttl:        ttl,
	}, nil
}

// ParseTokenExpireTime reads a TOKEN_EXPIRE_TIME style value. "never", "0"
// and "" all mean no expiry.
func ParseTokenExpireTime(value string) (time.Duration, error) {
	if value == "never" || value == "0" || value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// CreateHostToken signs a token with "sub" = gameID.
func (i *Issuer) CreateHostToken(gameID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": gameID,
		"iat": time.Now().Unix(),
	}
	if i.ttl != 0 {
		claims["exp"] = time.Now().Add(i.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// AuthenticateHost verifies tokenString and checks that it was issued for gameID.
func (i *Issuer) AuthenticateHost(tokenString, gameID string) error {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	})
	if err != nil {
		return fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return fmt.Errorf("missing sub in jwt")
	}
	if sub != gameID {
		return ErrWrongSession
	}
	return nil
}
