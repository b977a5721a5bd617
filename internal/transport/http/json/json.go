// Package json writes consent API response bodies. Every handler and
// middleware goes through WriteJSON so the envelope and headers stay uniform.
package json

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes status and the JSON encoding of response. The status line
// goes out before the body, so an encoding failure afterwards cannot be
// reported to the client and is dropped.
func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
