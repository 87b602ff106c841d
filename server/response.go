package server

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/teranos/semcluster/errors"
	"github.com/teranos/semcluster/logger"
)

// errorBody is every error reply. detail repeats error so FastAPI-style
// clients of /embed read it where they expect it.
type errorBody struct {
	Error  string   `json:"error"`
	Detail string   `json:"detail"`
	Kind   string   `json:"kind,omitempty"`
	Hints  []string `json:"hints,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, errorBody{Error: message, Detail: message})
}

// writeServiceError maps err onto a status and writes it with its kind and hints
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{
		Error:  err.Error(),
		Detail: err.Error(),
		Kind:   errors.Kind(err),
		Hints:  errors.GetAllHints(err),
	}

	log := logger.LoggerFromContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		log.Warnw("Request failed",
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, status,
			logger.FieldErrorKind, body.Kind,
			logger.FieldError, body.Error,
		)
	}
	_ = writeJSON(w, status, body)
}

// readJSON decodes the request body into v, bounded by server.max_body_bytes.
// On failure it has already written the reply.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := r.Body
	if limit := s.maxBodyBytes.Load(); limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body exceeds server.max_body_bytes")
			return false
		}
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// requireMethod checks if the request method matches the expected method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}
