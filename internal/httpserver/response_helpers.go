package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tarigateway/reconciler/internal/engineerr"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErr maps err to a response: an *engineerr.Error renders through
// its own Code.HTTPStatus(); anything else is an unclassified 500.
func writeErr(w http.ResponseWriter, err error) {
	if ee, ok := err.(*engineerr.Error); ok {
		engineerr.WriteError(w, ee)
		return
	}
	engineerr.WriteError(w, engineerr.BackendError(err.Error()))
}

// decodeJSON decodes r's body into v and returns the decoder's error on
// malformed input; callers write the 400 response themselves.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
