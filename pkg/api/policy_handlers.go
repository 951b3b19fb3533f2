package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/platinummonkey/citadel/pkg/audit"
	"github.com/platinummonkey/citadel/pkg/contextkeys"
	"github.com/platinummonkey/citadel/pkg/httputil"
	"github.com/platinummonkey/citadel/pkg/policy"
)

// actionResponse describes one registered action and its acceptable policy
// kinds.
type actionResponse struct {
	Identifier string              `json:"identifier"`
	Name       string              `json:"name"`
	Policies   []policy.Descriptor `json:"policies"`
}

// assignmentResponse is one action → policy assignment.
type assignmentResponse struct {
	Action string          `json:"action"`
	Policy json.RawMessage `json:"policy"`
}

// checkPolicyAdmin gates the policy administration endpoints. Returns false
// after writing the response when the caller may not manage policies.
func (s *Server) checkPolicyAdmin(w http.ResponseWriter, r *http.Request) bool {
	switch s.svc.CheckAction(r.Context(), ActionManagePolicies, nil) {
	case policy.DecisionAllowed:
		return true
	case policy.DecisionUnauthenticated:
		httputil.WriteUnauthorized(w, "not authenticated")
		return false
	default:
		httputil.WriteForbidden(w, "not authorized")
		return false
	}
}

// auditPolicyChange records an assignment change on the audit trail.
func (s *Server) auditPolicyChange(r *http.Request, actionID, op, policyID string) {
	e := audit.NewEvent(audit.EventTypePolicyChange, audit.EventStatusSuccess)
	e.Client = contextkeys.GetClientAddr(r.Context())
	if caller := contextkeys.IdentityFrom(r.Context()); !caller.IsAnonymous() {
		e.Actor = caller.ID
	}
	e.Action = actionID
	e.Metadata = map[string]interface{}{"op": op}
	if policyID != "" {
		e.Metadata["policy"] = policyID
	}
	if err := s.svc.Auditor().Log(r.Context(), e); err != nil {
		s.log.WithError(err).Warn("audit log write failed")
	}
}

// listActions handles GET /v1/actions
func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	if !s.checkPolicyAdmin(w, r) {
		return
	}
	actions := s.actions.List()
	out := make([]actionResponse, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionResponse{Identifier: a.Identifier, Name: a.Name, Policies: a.Policies})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	httputil.WriteSuccess(w, out)
}

// listPolicies handles GET /v1/policies
func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	if !s.checkPolicyAdmin(w, r) {
		return
	}

	snapshot := s.policies.Snapshot()
	out := make([]assignmentResponse, 0, len(snapshot))
	for actionID, p := range snapshot {
		raw, err := s.codec.Encode(p)
		if err != nil {
			s.log.WithError(err).WithField("action", actionID).Error("failed to encode policy")
			continue
		}
		out = append(out, assignmentResponse{Action: actionID, Policy: raw})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	httputil.WriteSuccess(w, out)
}

// putPolicy handles PUT /v1/policies/{action}, with the serialized policy as
// the request body.
func (s *Server) putPolicy(w http.ResponseWriter, r *http.Request) {
	if !s.checkPolicyAdmin(w, r) {
		return
	}

	actionID := httputil.GetPathVars(r)["action"]
	action, ok := s.actions.Lookup(actionID)
	if !ok {
		httputil.WriteNotFoundError(w, "unknown action")
		return
	}

	var raw json.RawMessage
	if !httputil.ParseJSONOrError(w, r, &raw) {
		return
	}
	p, err := s.codec.Decode(raw)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := s.policies.Put(action, p); err != nil {
		if errors.Is(err, policy.ErrParameterOutOfRange) {
			httputil.WriteBadRequest(w, "policy not acceptable for this action")
			return
		}
		s.log.WithError(err).Error("failed to persist policy assignment")
		httputil.WriteInternalError(w, errors.New("failed to persist policy assignment"))
		return
	}
	s.auditPolicyChange(r, action.Identifier, "put", p.Descriptor().Identifier)
	httputil.WriteNoContent(w)
}

// removePolicy handles DELETE /v1/policies/{action}
func (s *Server) removePolicy(w http.ResponseWriter, r *http.Request) {
	if !s.checkPolicyAdmin(w, r) {
		return
	}

	actionID := httputil.GetPathVars(r)["action"]
	if err := s.policies.Remove(actionID); err != nil {
		s.log.WithError(err).Error("failed to persist policy removal")
		httputil.WriteInternalError(w, errors.New("failed to persist policy removal"))
		return
	}
	s.auditPolicyChange(r, actionID, "remove", "")
	httputil.WriteNoContent(w)
}
