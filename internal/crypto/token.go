package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidPublicKey = errors.New("invalid Ed25519 public key")
	ErrInvalidToken     = errors.New("invalid identity token")
	ErrTokenExpired     = errors.New("identity token expired")
)

// ParsePublicKey decodes a base64-encoded Ed25519 public key.
func ParsePublicKey(pubkeyB64 string) (ed25519.PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(pubkeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidPublicKey)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(decoded))
	}
	return ed25519.PublicKey(decoded), nil
}

// ParsePrivateKey decodes a base64-encoded Ed25519 private key.
func ParsePrivateKey(privB64 string) (ed25519.PrivateKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(privB64)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key: must be %d bytes, got %d", ed25519.PrivateKeySize, len(decoded))
	}
	return ed25519.PrivateKey(decoded), nil
}

// IssueToken creates a signed identity token for userID.
// Format: base64url(userID|expiresUnix) + "." + base64url(signature).
func IssueToken(priv ed25519.PrivateKey, userID uuid.UUID, ttl time.Duration) string {
	payload := fmt.Sprintf("%s|%d", userID, time.Now().Add(ttl).Unix())
	sig := ed25519.Sign(priv, []byte(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(sig)
}

// VerifyToken checks a token's signature and expiry and returns the user id
// it was issued for. This is the verify(token) -> userId contract the
// messaging core consumes from the identity layer.
func VerifyToken(pub ed25519.PublicKey, token string) (uuid.UUID, error) {
	dot := strings.IndexByte(token, '.')
	if dot < 0 {
		return uuid.Nil, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	if !ed25519.Verify(pub, payload, sig) {
		return uuid.Nil, ErrInvalidToken
	}

	parts := strings.Split(string(payload), "|")
	if len(parts) != 2 {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	if time.Now().Unix() > expires {
		return uuid.Nil, ErrTokenExpired
	}

	return userID, nil
}
