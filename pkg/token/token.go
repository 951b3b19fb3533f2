// Package token mints and verifies the stateless bearer tokens used to
// authenticate requests between login and logout.
//
// A token is self-contained: the login and expiry are embedded in the token
// itself and authenticated by a MAC, so no server-side session store exists.
// Token services are pluggable through a process-wide provider registry; the
// default is the HMAC-SHA-256 implementation in this package.
package token

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrInvalidToken is returned for tokens that are malformed or fail MAC
	// verification.
	ErrInvalidToken = errors.New("token: invalid")

	// ErrExpiredToken is returned for well-formed tokens whose embedded
	// expiry has passed.
	ErrExpiredToken = errors.New("token: expired")
)

// Service is the token mint/verify contract.
type Service interface {
	// Identifier returns the service identifier used for registry selection.
	Identifier() string

	// Name returns the cookie/header name the token travels under.
	Name() string

	// TTL returns the validity window applied to minted tokens.
	TTL() time.Duration

	// Mint issues a token for the login, valid for TTL from now.
	Mint(login string) (string, error)

	// Verify checks a token and returns the embedded login. Returns
	// ErrInvalidToken on any structural or MAC failure and ErrExpiredToken
	// when the token is authentic but past its expiry.
	Verify(tok string) (string, error)
}

// Provider instantiates a token service from a named configuration section.
type Provider interface {
	Identifier() string
	New(section map[string]string) (Service, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Provider)
)

// Register adds a token service provider to the process-wide registry.
func Register(p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[p.Identifier()]; dup {
		panic(fmt.Sprintf("token: provider %q registered twice", p.Identifier()))
	}
	registry[p.Identifier()] = p
}

// Selector resolves the configured token service once, lazily, and caches
// the instance for the process lifetime.
type Selector struct {
	identifier string
	section    map[string]string
	ttl        time.Duration

	once sync.Once
	svc  Service
	err  error
}

// NewSelector creates a selector for the named token service provider. An
// empty identifier selects the default HMAC service with the given TTL.
func NewSelector(identifier string, section map[string]string, ttl time.Duration) *Selector {
	return &Selector{identifier: identifier, section: section, ttl: ttl}
}

// Service returns the selected token service, instantiating it on first call.
func (s *Selector) Service() (Service, error) {
	s.once.Do(func() {
		if s.identifier == "" || s.identifier == HMACIdentifier {
			s.svc, s.err = NewHMACService(s.ttl)
			return
		}
		registryMu.RLock()
		p, ok := registry[s.identifier]
		registryMu.RUnlock()
		if !ok {
			s.err = fmt.Errorf("token: no provider registered for %q", s.identifier)
			return
		}
		s.svc, s.err = p.New(s.section)
	})
	return s.svc, s.err
}
