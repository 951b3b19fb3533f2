// Package security implements the platform security front door: login with
// brute-force lockout, token-based session authentication, identity binding
// via context, and centralized action authorization.
package security

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/platinummonkey/citadel/pkg/audit"
	"github.com/platinummonkey/citadel/pkg/contextkeys"
	"github.com/platinummonkey/citadel/pkg/identity"
	"github.com/platinummonkey/citadel/pkg/observability"
	"github.com/platinummonkey/citadel/pkg/policy"
	"github.com/platinummonkey/citadel/pkg/realm"
	"github.com/platinummonkey/citadel/pkg/token"
)

var (
	// ErrUnauthenticated is returned when no valid identity backs the call:
	// bad credentials, a banned client, an unparseable token, or a deleted
	// user.
	ErrUnauthenticated = errors.New("security: unauthenticated")

	// ErrUnauthorized is returned when the identity is known but not
	// permitted to perform the operation.
	ErrUnauthorized = errors.New("security: unauthorized")

	// ErrExpiredSession is returned for a well-formed token whose validity
	// window has passed. Callers can distinguish "log in again" from
	// "credentials rejected".
	ErrExpiredSession = errors.New("security: session expired")
)

// ActionChangeIdentity gates rebinding an already-authenticated context to a
// different identity.
var ActionChangeIdentity = &policy.Action{
	Identifier: "Security.ChangeIdentity",
	Name:       "Change the identity bound to an authenticated context",
	Policies: []policy.Descriptor{
		policy.DescDenyAll,
		policy.DescHasRole,
		policy.DescIsPlatformAdmin,
	},
}

// RegisterActions registers the security actions with the registry.
func RegisterActions(reg *policy.Registry) {
	reg.MustRegister(ActionChangeIdentity)
}

// Service is the security facade. It owns credential checking, ban tracking,
// token issuance and verification, and action authorization.
type Service struct {
	realm   realm.Realm
	tokens  token.Service
	bans    BanTracker
	engine  *policy.Engine
	auditor audit.Logger
	log     *observability.Logger
	metrics *observability.Metrics
}

// ServiceConfig carries the collaborators of a Service. Realm, Tokens, Bans
// and Engine are required; the rest default to no-ops.
type ServiceConfig struct {
	Realm   realm.Realm
	Tokens  token.Service
	Bans    BanTracker
	Engine  *policy.Engine
	Auditor audit.Logger
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewService creates the security facade.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Auditor == nil {
		cfg.Auditor = audit.NopLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		realm:   cfg.Realm,
		tokens:  cfg.Tokens,
		bans:    cfg.Bans,
		engine:  cfg.Engine,
		auditor: cfg.Auditor,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// isLoopback reports whether the client address is local. Loopback clients
// are exempt from ban tracking so an operator cannot lock themselves out of
// their own host.
func isLoopback(client string) bool {
	host := client
	if h, _, err := net.SplitHostPort(client); err == nil {
		host = h
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// Login validates the credentials against the realm and, on success, returns
// a context with the identity bound plus a session token for subsequent
// calls.
//
// Every failure from a non-loopback client counts toward that client's ban,
// including empty credentials. A banned client is rejected before the realm
// is consulted.
func (s *Service) Login(ctx context.Context, client, login, password string) (context.Context, string, error) {
	exempt := isLoopback(client)

	if !exempt && s.bans.IsBanned(ctx, client) {
		s.countLogin("banned")
		s.audit(ctx, audit.EventTypeLoginFailed, audit.EventStatusDenied, func(e *audit.Event) {
			e.Client = client
			e.Message = "login rejected: client banned"
		})
		return ctx, "", ErrUnauthenticated
	}

	user, err := s.realm.Authenticate(ctx, login, password)
	if err != nil {
		s.log.WithError(err).WithField("realm", s.realm.Identifier()).Warn("realm authentication error")
		s.countLogin("failure")
		return ctx, "", err
	}
	if user == nil {
		s.recordFailure(ctx, client, exempt)
		s.countLogin("failure")
		s.audit(ctx, audit.EventTypeLoginFailed, audit.EventStatusFailure, func(e *audit.Event) {
			e.Actor = login
			e.Client = client
			e.Message = "login rejected: invalid credentials"
		})
		return ctx, "", ErrUnauthenticated
	}

	if !exempt {
		s.bans.Reset(ctx, client)
	}

	tok, err := s.tokens.Mint(user.ID)
	if err != nil {
		return ctx, "", err
	}
	if s.metrics != nil {
		s.metrics.TokenMintsTotal.Inc()
	}
	s.countLogin("success")
	s.audit(ctx, audit.EventTypeLogin, audit.EventStatusSuccess, func(e *audit.Event) {
		e.Actor = user.ID
		e.Client = client
	})

	return contextkeys.WithIdentity(ctx, user), tok, nil
}

// Authenticate verifies a session token and returns a context with the
// token's identity bound.
//
// A malformed or tampered token counts as a login failure for the client; an
// expired token does not, it just asks for a fresh login.
func (s *Service) Authenticate(ctx context.Context, client, tok string) (context.Context, error) {
	exempt := isLoopback(client)

	if !exempt && s.bans.IsBanned(ctx, client) {
		s.countVerify("invalid")
		return ctx, ErrUnauthenticated
	}

	login, err := s.tokens.Verify(tok)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			s.countVerify("expired")
			s.audit(ctx, audit.EventTypeTokenExpired, audit.EventStatusFailure, func(e *audit.Event) {
				e.Client = client
			})
			return ctx, ErrExpiredSession
		}
		s.recordFailure(ctx, client, exempt)
		s.countVerify("invalid")
		s.audit(ctx, audit.EventTypeTokenInvalid, audit.EventStatusFailure, func(e *audit.Event) {
			e.Client = client
		})
		return ctx, ErrUnauthenticated
	}

	user, err := s.realm.GetUser(ctx, login)
	if err != nil {
		if errors.Is(err, realm.ErrNotFound) {
			// Token outlived the account.
			s.countVerify("invalid")
			return ctx, ErrUnauthenticated
		}
		return ctx, err
	}

	s.countVerify("valid")
	return contextkeys.WithIdentity(ctx, user), nil
}

// AuthenticateAs binds the given identity directly, bypassing credentials.
// On an unauthenticated context this is plain trusted-caller binding; on a
// context that already carries an identity the caller must be authorized for
// ActionChangeIdentity.
func (s *Service) AuthenticateAs(ctx context.Context, user *identity.User) (context.Context, error) {
	if user.IsAnonymous() {
		return ctx, ErrUnauthenticated
	}

	if current := contextkeys.IdentityFrom(ctx); !current.IsAnonymous() {
		switch s.CheckAction(ctx, ActionChangeIdentity, nil) {
		case policy.DecisionAllowed:
		case policy.DecisionUnauthenticated:
			return ctx, ErrUnauthenticated
		default:
			return ctx, ErrUnauthorized
		}
		s.audit(ctx, audit.EventTypeImpersonate, audit.EventStatusSuccess, func(e *audit.Event) {
			e.Actor = current.ID
			e.Message = "identity changed to " + user.ID
		})
	}

	return contextkeys.WithIdentity(ctx, user), nil
}

// Logout clears the bound identity. The token itself stays valid until its
// expiry; only the context binding is dropped.
func (s *Service) Logout(ctx context.Context) context.Context {
	if user := contextkeys.IdentityFrom(ctx); !user.IsAnonymous() {
		s.audit(ctx, audit.EventTypeLogout, audit.EventStatusSuccess, func(e *audit.Event) {
			e.Actor = user.ID
		})
	}
	return contextkeys.WithIdentity(ctx, nil)
}

// CheckAction decides whether the identity bound to the context may perform
// the action. data carries the action's context payload, typically a resource
// identifier or descriptor.
func (s *Service) CheckAction(ctx context.Context, action *policy.Action, data interface{}) policy.Decision {
	start := time.Now()
	user := contextkeys.IdentityFrom(ctx)
	decision := s.engine.Check(ctx, user, action, data)

	if s.metrics != nil {
		s.metrics.ObserveActionCheck(action.Identifier, decision.String(), time.Since(start))
	}
	if decision == policy.DecisionUnauthorized {
		s.audit(ctx, audit.EventTypeActionDenied, audit.EventStatusDenied, func(e *audit.Event) {
			if user != nil {
				e.Actor = user.ID
			}
			e.Action = action.Identifier
		})
	}
	return decision
}

// TokenService exposes the token service for handlers that need its name or
// TTL, such as cookie construction.
func (s *Service) TokenService() token.Service { return s.tokens }

// Auditor exposes the audit trail so callers gated through the service can
// record their own administrative events.
func (s *Service) Auditor() audit.Logger { return s.auditor }

func (s *Service) recordFailure(ctx context.Context, client string, exempt bool) {
	if exempt {
		return
	}
	if s.bans.RecordFailure(ctx, client) {
		if s.metrics != nil {
			s.metrics.ClientsBannedTotal.Inc()
		}
		s.log.WithField("client", client).Warn("client banned after repeated login failures")
		s.audit(ctx, audit.EventTypeClientBanned, audit.EventStatusDenied, func(e *audit.Event) {
			e.Client = client
		})
	}
}

func (s *Service) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countVerify(outcome string) {
	if s.metrics != nil {
		s.metrics.TokenVerifiesTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) audit(ctx context.Context, t audit.EventType, status audit.EventStatus, fill func(*audit.Event)) {
	e := audit.NewEvent(t, status)
	e.Client = contextkeys.GetClientAddr(ctx)
	fill(e)
	if err := s.auditor.Log(ctx, e); err != nil {
		s.log.WithError(err).Warn("audit log write failed")
	}
}
