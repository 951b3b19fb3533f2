package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// HMACIdentifier is the registry identifier of the default token service.
const HMACIdentifier = "hmac"

// DefaultName is the cookie/header name tokens travel under.
const DefaultName = "citadel-token"

// DefaultTTL is the validity window applied when none is configured.
const DefaultTTL = 12 * time.Hour

// keySize is the MAC key size: 256 bits.
const keySize = 32

// macSize is the length of the appended MAC (SHA-256 digest).
const macSize = sha256.Size

// expirySize is the length of the embedded big-endian expiry timestamp.
const expirySize = 8

// HMACService mints tokens of the form
//
//	base64url(login || validUntil(8 bytes BE, unix millis) || HMAC-SHA-256(login || validUntil))
//
// The MAC key is generated from crypto/rand at construction and lives only in
// memory. It is intentionally never persisted: every process restart
// invalidates all outstanding tokens. Sessions are cheap to re-establish and
// a persisted key would be a far more attractive theft target.
type HMACService struct {
	key []byte
	ttl time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewHMACService creates the default token service with a fresh random key.
// A failure to draw key material is the only unrecoverable condition in the
// security kernel and must abort startup.
func NewHMACService(ttl time.Duration) (*HMACService, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate token MAC key: %w", err)
	}
	return &HMACService{key: key, ttl: ttl, now: time.Now}, nil
}

// Identifier implements Service.
func (s *HMACService) Identifier() string { return HMACIdentifier }

// Name implements Service.
func (s *HMACService) Name() string { return DefaultName }

// TTL implements Service.
func (s *HMACService) TTL() time.Duration { return s.ttl }

// Mint implements Service.
func (s *HMACService) Mint(login string) (string, error) {
	validUntil := s.now().Add(s.ttl).UnixMilli()

	payload := make([]byte, 0, len(login)+expirySize)
	payload = append(payload, login...)
	payload = binary.BigEndian.AppendUint64(payload, uint64(validUntil))

	mac := s.mac(payload)
	return base64.RawURLEncoding.EncodeToString(append(payload, mac...)), nil
}

// Verify implements Service.
func (s *HMACService) Verify(tok string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return "", ErrInvalidToken
	}
	if len(raw) < macSize+expirySize {
		return "", ErrInvalidToken
	}

	payload := raw[:len(raw)-macSize]
	provided := raw[len(raw)-macSize:]
	if !hmac.Equal(provided, s.mac(payload)) {
		return "", ErrInvalidToken
	}

	validUntil := int64(binary.BigEndian.Uint64(payload[len(payload)-expirySize:]))
	if s.now().UnixMilli() > validUntil {
		return "", ErrExpiredToken
	}

	return string(payload[:len(payload)-expirySize]), nil
}

func (s *HMACService) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write(payload)
	return h.Sum(nil)
}
