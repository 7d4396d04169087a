package devserver

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// writeError writes a JSON error response in the backend's shape.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"message": message})
}

// writeValidation writes a 422 whose field errors appear both under
// "errors" and at the top level.
func writeValidation(w http.ResponseWriter, fields fieldErrors) {
	body := map[string]any{
		"message": "The given data was invalid.",
		"errors":  fields,
	}
	for k, v := range fields {
		if k == "message" || k == "errors" {
			continue
		}
		body[k] = v
	}
	writeJSON(w, http.StatusUnprocessableEntity, body)
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}
