// Package httputil centralizes JSON response and error envelopes so every
// handler emits the same shapes.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "landledger/pkg/domain-errors"
)

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Decode unmarshals the request body into T. On malformed input it writes the
// bad_request envelope and returns false; the handler just returns.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "malformed request body", err))
		return req, false
	}
	return req, true
}

// WriteError translates a domain error into the JSON error envelope. Internal
// errors omit the description so collaborator failures are never surfaced raw.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if e, ok := err.(*dErrors.Error); ok {
			body["error_description"] = e.Message
		}
	}
	WriteJSON(w, status, body)
}
