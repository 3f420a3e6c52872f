// internal/api/handlers.go
package api

import (
	"net/http"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scribe-cli/internal/observability"
	"github.com/xkilldash9x/scribe-cli/internal/publisher"
)

// CredentialsPayload carries platform credentials in a request. When it is
// omitted the server's configured credentials are used.
type CredentialsPayload struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

// SubmitRequest is the body of POST /api/v1/chapters.
type SubmitRequest struct {
	Credentials *CredentialsPayload `json:"credentials,omitempty"`
	Title       string              `json:"title"`
	Body        string              `json:"body"`
	WorkID      string              `json:"work_id,omitempty"`
}

// ListWorksRequest is the body of POST /api/v1/works/list.
type ListWorksRequest struct {
	Credentials *CredentialsPayload `json:"credentials,omitempty"`
}

// Response is the envelope of every API response.
type Response struct {
	Status string      `json:"status"`
	Kind   string      `json:"kind,omitempty"`
	Error  string      `json:"error,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondWithStatus(w, http.StatusOK, "ok", nil)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}

	creds := s.credentials(req.Credentials)
	content := publisher.Content{Title: req.Title, Body: req.Body}
	var target *publisher.TargetRef
	if req.WorkID != "" {
		target = &publisher.TargetRef{ID: req.WorkID}
	}
	// Rejected input never waits for a browser session.
	if !s.validate(w,
		publisher.ValidateContent(content),
		publisher.ValidateCredentials(creds),
		publisher.ValidateTarget(target)) {
		return
	}

	if !s.acquire(r.Context()) {
		s.respondWithError(w, http.StatusTooManyRequests, "", "all browser sessions are busy")
		return
	}
	defer s.sessions.Release(1)

	result, err := s.service.SubmitContent(r.Context(), creds, content, target)
	if err != nil {
		kind := publisher.KindOf(err)
		s.logger.Warn("Submission request failed.",
			zap.String("identity", observability.MaskIdentity(creds.Identity)),
			zap.String("kind", string(kind)),
			zap.Error(err))
		s.respond(w, statusFor(kind), Response{Status: "error", Kind: string(kind), Error: err.Error(), Data: result})
		return
	}
	s.respondWithStatus(w, http.StatusOK, "success", result)
}

func (s *Server) handleListWorks(w http.ResponseWriter, r *http.Request) {
	var req ListWorksRequest
	if !s.decode(w, r, &req) {
		return
	}
	creds := s.credentials(req.Credentials)
	if !s.validate(w, publisher.ValidateCredentials(creds)) {
		return
	}
	if !s.acquire(r.Context()) {
		s.respondWithError(w, http.StatusTooManyRequests, "", "all browser sessions are busy")
		return
	}
	defer s.sessions.Release(1)

	works, err := s.service.ListWorks(r.Context(), creds)
	if err != nil {
		kind := publisher.KindOf(err)
		s.respondWithError(w, statusFor(kind), kind, err.Error())
		return
	}
	s.respondWithStatus(w, http.StatusOK, "success", map[string]interface{}{
		"count": len(works),
		"works": works,
	})
}

// decode reads a JSON body into v, answering 400 itself on failure. An
// empty body decodes to the zero value.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondWithError(w, http.StatusBadRequest, publisher.KindValidation, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// validate answers 400 with the first non-nil error.
func (s *Server) validate(w http.ResponseWriter, errs ...error) bool {
	for _, err := range errs {
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, publisher.KindOf(err), err.Error())
			return false
		}
	}
	return true
}

func (s *Server) credentials(p *CredentialsPayload) publisher.Credentials {
	if p != nil && p.Identity != "" {
		return publisher.Credentials{Identity: p.Identity, Secret: p.Secret}
	}
	pc := s.cfg.Platform()
	return publisher.Credentials{Identity: pc.Identity, Secret: pc.Secret}
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind publisher.ErrorKind) int {
	switch kind {
	case publisher.KindValidation:
		return http.StatusBadRequest
	case publisher.KindAuthentication:
		return http.StatusUnauthorized
	case publisher.KindSelection:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, kind publisher.ErrorKind, message string) {
	s.respond(w, code, Response{Status: "error", Kind: string(kind), Error: message})
}

func (s *Server) respondWithStatus(w http.ResponseWriter, code int, status string, data interface{}) {
	s.respond(w, code, Response{Status: status, Data: data})
}

func (s *Server) respond(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
