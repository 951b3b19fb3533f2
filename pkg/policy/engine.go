package policy

import (
	"context"

	"github.com/platinummonkey/citadel/pkg/identity"
	"github.com/platinummonkey/citadel/pkg/observability"
)

// Decision is the outcome of a checkAction call.
type Decision int

const (
	// DecisionUnauthenticated means no identity is bound to the context.
	DecisionUnauthenticated Decision = iota
	// DecisionUnauthorized means the identity is known but denied.
	DecisionUnauthorized
	// DecisionAllowed means the identity may perform the action.
	DecisionAllowed
)

func (d Decision) String() string {
	switch d {
	case DecisionUnauthenticated:
		return "unauthenticated"
	case DecisionUnauthorized:
		return "unauthorized"
	case DecisionAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// Engine resolves and evaluates action policy.
type Engine struct {
	cfg *Configuration
	env Env
	log *observability.Logger
}

// NewEngine creates a policy engine over a configuration and the
// collaborators policies evaluate against.
func NewEngine(cfg *Configuration, env Env, log *observability.Logger) *Engine {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Engine{cfg: cfg, env: env, log: log}
}

// Check decides whether the identity may perform the action.
//
// Platform administrators are allowed unconditionally, before the configured
// policy is consulted. An action with no configured policy is denied: absence
// of policy means deny, not allow.
func (e *Engine) Check(ctx context.Context, user *identity.User, action *Action, data interface{}) Decision {
	if user.IsAnonymous() {
		return DecisionUnauthenticated
	}

	if e.env.Roles != nil {
		isAdmin, err := e.env.Roles.CheckHasRole(ctx, user.ID, identity.RolePlatformAdmin)
		if err != nil {
			e.log.WithError(err).Warnf("admin role check failed for %q", user.ID)
		} else if isAdmin {
			return DecisionAllowed
		}
	}

	p := e.cfg.Resolve(action.Identifier)
	if p == nil {
		return DecisionUnauthorized
	}

	ok, err := p.Authorize(ctx, e.env, user, action, data)
	if err != nil {
		e.log.WithError(err).
			WithField("action", action.Identifier).
			WithField("user", user.ID).
			Warn("policy evaluation failed")
		return DecisionUnauthorized
	}
	if !ok {
		return DecisionUnauthorized
	}
	return DecisionAllowed
}
