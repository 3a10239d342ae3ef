package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pinsync/pinsync/internal/schema"
)

const maxBody = 1 << 20

type ctxKey string

const ownerKey ctxKey = "owner"

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

// requireAccess rejects requests without a valid access token.
func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		owner, err := s.issuer.Verify(token, AccessToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	owner, err := s.issuer.Verify(req.RefreshToken, RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	token, ttl, err := s.issuer.Issue(owner, AccessToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: token, ExpiresIn: int(ttl.Seconds())})
}

// --- collections ---

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	list, err := s.repo.ListCollections(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var in schema.CollectionInput
	if !s.decode(w, r, &in) {
		return
	}
	c, created, err := s.repo.CreateCollection(r.Context(), ownerFrom(r.Context()), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, createdStatus(created), c)
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	c, err := s.repo.GetCollection(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateCollection(w http.ResponseWriter, r *http.Request) {
	var p CollectionPatch
	if !s.decode(w, r, &p) {
		return
	}
	c, err := s.repo.UpdateCollection(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"), p)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeleteCollection(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- pins ---

func (s *Server) listPins(w http.ResponseWriter, r *http.Request) {
	list, err := s.repo.ListPins(r.Context(), ownerFrom(r.Context()), r.URL.Query().Get("collectionId"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createPin(w http.ResponseWriter, r *http.Request) {
	var in schema.PinInput
	if !s.decode(w, r, &in) {
		return
	}
	p, created, err := s.repo.CreatePin(r.Context(), ownerFrom(r.Context()), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, createdStatus(created), p)
}

func (s *Server) getPin(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo.GetPin(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePin(w http.ResponseWriter, r *http.Request) {
	var p PinPatch
	if !s.decode(w, r, &p) {
		return
	}
	pin, err := s.repo.UpdatePin(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id"), p)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pin)
}

func (s *Server) deletePin(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DeletePin(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

type errorBody struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// decode reads a JSON body into v and validates it. On failure it writes a
// 400 and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if fields := s.validator.Check(v); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: fields})
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.Printf("Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
