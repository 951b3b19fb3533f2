package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/citadel/pkg/httputil"
	"github.com/platinummonkey/citadel/pkg/resource"
)

// createDescriptorRequest is the POST /v1/resources body.
type createDescriptorRequest struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

type ownerRequest struct {
	User string `json:"user"`
}

// createDescriptor handles POST /v1/resources
func (s *Server) createDescriptor(w http.ResponseWriter, r *http.Request) {
	var req createDescriptorRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Identifier, "identifier") {
		return
	}

	d, err := s.resources.Create(r.Context(), req.Identifier, req.Name)
	if err != nil {
		s.writeResourceError(w, err)
		return
	}
	httputil.WriteCreated(w, d)
}

// getDescriptor handles GET /v1/resources/{id}
func (s *Server) getDescriptor(w http.ResponseWriter, r *http.Request) {
	id := httputil.GetPathVars(r)["id"]
	d, err := s.resources.Get(r.Context(), id)
	if err != nil {
		s.writeResourceError(w, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

// deleteDescriptor handles DELETE /v1/resources/{id}
func (s *Server) deleteDescriptor(w http.ResponseWriter, r *http.Request) {
	id := httputil.GetPathVars(r)["id"]
	if err := s.resources.Delete(r.Context(), id); err != nil {
		s.writeResourceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// addOwner handles POST /v1/resources/{id}/owners
func (s *Server) addOwner(w http.ResponseWriter, r *http.Request) {
	id := httputil.GetPathVars(r)["id"]
	var req ownerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.User, "user") {
		return
	}
	if err := s.resources.AddOwner(r.Context(), id, req.User); err != nil {
		s.writeResourceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// removeOwner handles DELETE /v1/resources/{id}/owners/{user}
func (s *Server) removeOwner(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	if err := s.resources.RemoveOwner(r.Context(), vars["id"], vars["user"]); err != nil {
		s.writeResourceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// addSharing handles POST /v1/resources/{id}/sharing
func (s *Server) addSharing(w http.ResponseWriter, r *http.Request) {
	id := httputil.GetPathVars(r)["id"]
	rule, ok := s.parseSharingRule(w, r)
	if !ok {
		return
	}
	if err := s.resources.AddSharing(r.Context(), id, rule); err != nil {
		s.writeResourceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// removeSharing handles DELETE /v1/resources/{id}/sharing, with the rule to
// remove in the request body.
func (s *Server) removeSharing(w http.ResponseWriter, r *http.Request) {
	id := httputil.GetPathVars(r)["id"]
	rule, ok := s.parseSharingRule(w, r)
	if !ok {
		return
	}
	if err := s.resources.RemoveSharing(r.Context(), id, rule); err != nil {
		s.writeResourceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) parseSharingRule(w http.ResponseWriter, r *http.Request) (resource.SharingRule, bool) {
	var rule resource.SharingRule
	if !httputil.ParseJSONOrError(w, r, &rule) {
		return rule, false
	}
	switch rule.Type {
	case resource.RuleEverybody:
	case resource.RuleUser:
		if !httputil.RequireNonEmpty(w, rule.User, "user") {
			return rule, false
		}
	case resource.RuleGroup:
		if !httputil.RequireNonEmpty(w, rule.Group, "group") {
			return rule, false
		}
	case resource.RuleRole:
		if !httputil.RequireNonEmpty(w, rule.Role, "role") {
			return rule, false
		}
	default:
		httputil.WriteBadRequest(w, "invalid sharing rule type")
		return rule, false
	}
	return rule, true
}

// writeResourceError maps resource manager errors to HTTP responses.
func (s *Server) writeResourceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resource.ErrUnauthenticated):
		httputil.WriteUnauthorized(w, "not authenticated")
	case errors.Is(err, resource.ErrUnauthorized):
		httputil.WriteForbidden(w, "not authorized")
	case errors.Is(err, resource.ErrNotFound):
		httputil.WriteNotFoundError(w, "resource not found")
	case errors.Is(err, resource.ErrAlreadyExists):
		httputil.WriteConflict(w, "descriptor already exists")
	case errors.Is(err, resource.ErrAlreadyOwner):
		httputil.WriteConflict(w, "already an owner")
	case errors.Is(err, resource.ErrLastOwner):
		httputil.WriteConflict(w, "cannot remove the last owner")
	default:
		s.log.WithError(err).Error("resource operation failed")
		httputil.WriteInternalError(w, errors.New("resource operation failed"))
	}
}
