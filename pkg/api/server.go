// Package api exposes the security kernel over HTTP: session endpoints,
// resource descriptor management, and action-policy administration.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/citadel/pkg/middleware"
	"github.com/platinummonkey/citadel/pkg/observability"
	"github.com/platinummonkey/citadel/pkg/policy"
	"github.com/platinummonkey/citadel/pkg/resource"
	"github.com/platinummonkey/citadel/pkg/security"
)

// ActionManagePolicies gates the policy administration endpoints. With no
// policy configured only platform administrators pass.
var ActionManagePolicies = &policy.Action{
	Identifier: "Policies.Manage",
	Name:       "Manage action policy assignments",
	Policies: []policy.Descriptor{
		policy.DescDenyAll,
		policy.DescHasRole,
		policy.DescIsPlatformAdmin,
	},
}

// RegisterActions registers the API's own secured actions.
func RegisterActions(reg *policy.Registry) {
	reg.MustRegister(ActionManagePolicies)
}

// Server represents our API server
type Server struct {
	router    *mux.Router
	svc       *security.Service
	resources *resource.Manager
	policies  *policy.Configuration
	actions   *policy.Registry
	codec     *policy.Codec
	log       *observability.Logger
}

// NewServer creates a new API server
func NewServer(svc *security.Service, resources *resource.Manager, policies *policy.Configuration, actions *policy.Registry, codec *policy.Codec, log *observability.Logger) *Server {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Server{
		router:    mux.NewRouter(),
		svc:       svc,
		resources: resources,
		policies:  policies,
		actions:   actions,
		codec:     codec,
		log:       log,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestContext)

	// Session routes. Login is the only route reachable without a token.
	s.router.HandleFunc("/v1/auth/login", s.login).Methods("POST")

	authed := s.router.PathPrefix("/v1").Subrouter()
	authed.Use(middleware.NewAuthMiddleware(s.svc, false).Handler)

	authed.HandleFunc("/auth/logout", s.logout).Methods("POST")
	authed.HandleFunc("/auth/whoami", s.whoami).Methods("GET")

	// Resource descriptor routes
	authed.HandleFunc("/resources", s.createDescriptor).Methods("POST")
	authed.HandleFunc("/resources/{id:.+}/owners", s.addOwner).Methods("POST")
	authed.HandleFunc("/resources/{id:.+}/owners/{user}", s.removeOwner).Methods("DELETE")
	authed.HandleFunc("/resources/{id:.+}/sharing", s.addSharing).Methods("POST")
	authed.HandleFunc("/resources/{id:.+}/sharing", s.removeSharing).Methods("DELETE")
	authed.HandleFunc("/resources/{id:.+}", s.getDescriptor).Methods("GET")
	authed.HandleFunc("/resources/{id:.+}", s.deleteDescriptor).Methods("DELETE")

	// Policy administration routes
	authed.HandleFunc("/actions", s.listActions).Methods("GET")
	authed.HandleFunc("/policies", s.listPolicies).Methods("GET")
	authed.HandleFunc("/policies/{action}", s.putPolicy).Methods("PUT")
	authed.HandleFunc("/policies/{action}", s.removePolicy).Methods("DELETE")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
