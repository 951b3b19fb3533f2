package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// ParseJSON decodes the request body into dest
func ParseJSON(r *http.Request, dest interface{}) error {
	return json.NewDecoder(r.Body).Decode(dest)
}

// ParseJSONOrError decodes the request body into dest, writing a 400 response
// and returning false on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, "invalid request body")
		return false
	}
	return true
}

// GetPathVars returns the mux path variables of the request
func GetPathVars(r *http.Request) map[string]string {
	return mux.Vars(r)
}

// RequireNonEmpty validates that value is not empty, writing a 400 response
// and returning false otherwise
func RequireNonEmpty(w http.ResponseWriter, value, fieldName string) bool {
	if value == "" {
		WriteBadRequest(w, fieldName+" is required")
		return false
	}
	return true
}
