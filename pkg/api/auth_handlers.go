package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/citadel/pkg/contextkeys"
	"github.com/platinummonkey/citadel/pkg/httputil"
	"github.com/platinummonkey/citadel/pkg/middleware"
	"github.com/platinummonkey/citadel/pkg/security"
)

// loginRequest is the POST /v1/auth/login body.
type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// loginResponse carries the session token and the authenticated identity.
type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// login handles POST /v1/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx, tok, err := s.svc.Login(r.Context(), middleware.ClientAddr(r), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, security.ErrUnauthenticated) {
			httputil.WriteUnauthorized(w, "invalid credentials")
			return
		}
		s.log.WithError(err).Error("login failed")
		httputil.WriteInternalError(w, errors.New("login failed"))
		return
	}

	user := contextkeys.IdentityFrom(ctx)
	http.SetCookie(w, &http.Cookie{
		Name:     s.svc.TokenService().Name(),
		Value:    tok,
		Path:     "/",
		MaxAge:   int(s.svc.TokenService().TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	httputil.WriteSuccess(w, loginResponse{
		Token: tok,
		User:  userResponse{ID: user.ID, DisplayName: user.DisplayName},
	})
}

// logout handles POST /v1/auth/logout
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.svc.Logout(r.Context())
	http.SetCookie(w, &http.Cookie{
		Name:     s.svc.TokenService().Name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	httputil.WriteNoContent(w)
}

// whoami handles GET /v1/auth/whoami
func (s *Server) whoami(w http.ResponseWriter, r *http.Request) {
	user := contextkeys.IdentityFrom(r.Context())
	if user.IsAnonymous() {
		httputil.WriteUnauthorized(w, "not authenticated")
		return
	}
	httputil.WriteSuccess(w, userResponse{ID: user.ID, DisplayName: user.DisplayName})
}
