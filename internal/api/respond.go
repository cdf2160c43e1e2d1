// internal/api/respond.go
package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lead-funnel/internal/common/errors"
	"lead-funnel/internal/common/validation"

	"github.com/go-chi/chi/v5/middleware"
)

type errorBody struct {
	Code       errors.ErrorCode `json:"code"`
	Message    string           `json:"message"`
	Violations interface{}      `json:"violations,omitempty"`
	Details    string           `json:"details,omitempty"`
	Retryable  bool             `json:"retryable,omitempty"`
	RequestID  string           `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// publicError exposes only the error category. Violations are kept on 400 so
// the form can highlight fields.
func (s *Server) publicError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, err, false)
}

// operatorError adds the underlying details for the dashboard.
func (s *Server) operatorError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, err, true)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, operator bool) {
	se := errors.Normalize(err)
	status := errors.HTTPStatus(se.Code)

	body := errorBody{
		Code:      se.Code,
		Message:   se.Message,
		Retryable: se.Retryable,
		RequestID: middleware.GetReqID(r.Context()),
	}
	if v, ok := se.Metadata["violations"]; ok {
		body.Violations = v
	}
	switch {
	case operator:
		body.Details = se.Details
	case status == http.StatusServiceUnavailable:
		body.Message = "Service temporarily unavailable, retry later"
	case status >= http.StatusInternalServerError:
		body.Message = "Unexpected error"
	}

	fields := map[string]interface{}{
		"code":   se.Code,
		"status": status,
		"path":   r.URL.Path,
	}
	if status >= http.StatusInternalServerError {
		fields["error"] = err
		s.logger.Error("request failed", fields)
	} else {
		s.logger.Debug("request rejected", fields)
	}

	writeJSON(w, status, map[string]interface{}{"error": body})
}

// decodeJSON reads a bounded JSON body into dst. With strict set, unknown
// fields are reported as violations.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, strict bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			return errors.NewInvalidRequestError(fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
		case stderrors.Is(err, io.EOF):
			return errors.NewInvalidRequestError("request body is empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			v := []validation.ValidationError{{Field: field, Message: field + " is not writable", Code: validation.CodeExtraField}}
			return errors.NewValidationFailedError(v, len(v))
		}
		return errors.NewInvalidRequestError("malformed JSON body: " + err.Error())
	}
	return nil
}
