package token

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestHMACService_MintVerifyRoundTrip(t *testing.T) {
	svc, err := NewHMACService(time.Hour)
	if err != nil {
		t.Fatalf("NewHMACService() error = %v", err)
	}

	tok, err := svc.Mint("alice")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	login, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if login != "alice" {
		t.Errorf("Verify() login = %q, want %q", login, "alice")
	}
}

func TestHMACService_EmptyLogin(t *testing.T) {
	svc, _ := NewHMACService(time.Hour)

	tok, err := svc.Mint("")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	login, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if login != "" {
		t.Errorf("Verify() login = %q, want empty", login)
	}
}

func TestHMACService_ExpiredNotInvalid(t *testing.T) {
	svc, _ := NewHMACService(time.Hour)

	// Mint in the past so the embedded expiry has already elapsed.
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := svc.Mint("alice")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	svc.now = time.Now
	_, err = svc.Verify(tok)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestHMACService_TamperedTokenIsInvalid(t *testing.T) {
	svc, _ := NewHMACService(time.Hour)

	tok, err := svc.Mint("alice")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Flipping any single byte must fail MAC verification.
	for i := range raw {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01

		_, err := svc.Verify(base64.RawURLEncoding.EncodeToString(mutated))
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("byte %d: Verify() error = %v, want ErrInvalidToken", i, err)
		}
	}
}

func TestHMACService_TruncatedToken(t *testing.T) {
	svc, _ := NewHMACService(time.Hour)

	tests := []struct {
		name string
		tok  string
	}{
		{name: "empty", tok: ""},
		{name: "not base64", tok: "!!!not-base64!!!"},
		{name: "too short", tok: base64.RawURLEncoding.EncodeToString(make([]byte, macSize+expirySize-1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.tok)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify(%q) error = %v, want ErrInvalidToken", tt.tok, err)
			}
		})
	}
}

func TestHMACService_KeyIsProcessScoped(t *testing.T) {
	// Tokens do not survive a key change, which is what a restart amounts to.
	a, _ := NewHMACService(time.Hour)
	b, _ := NewHMACService(time.Hour)

	tok, err := a.Mint("alice")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := b.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() across services error = %v, want ErrInvalidToken", err)
	}
}

func TestSelector_DefaultHMAC(t *testing.T) {
	s := NewSelector("", nil, time.Minute)
	svc, err := s.Service()
	if err != nil {
		t.Fatalf("Service() error = %v", err)
	}
	if svc.Identifier() != HMACIdentifier {
		t.Errorf("Identifier() = %q, want %q", svc.Identifier(), HMACIdentifier)
	}
	if svc.TTL() != time.Minute {
		t.Errorf("TTL() = %v, want %v", svc.TTL(), time.Minute)
	}

	again, err := s.Service()
	if err != nil {
		t.Fatalf("Service() error = %v", err)
	}
	if again != svc {
		t.Error("Service() should cache the selected instance")
	}
}
