package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

const maxMessageBody = 64 << 10

// handleMessages serves POST /api/messages.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, newMessage(MessageError, ErrorData{Error: "method not allowed"}))
		return
	}

	// A browser can send text/plain cross-site without a preflight; JSON
	// cannot. Origin is only set by browsers.
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, newMessage(MessageError, ErrorData{Error: "content type must be application/json"}))
		return
	}
	if origin := r.Header.Get("Origin"); origin != "" && !isLoopbackOrigin(origin) {
		s.logger.Printf("Rejected control message from origin %s", origin)
		writeJSON(w, http.StatusForbidden, newMessage(MessageError, ErrorData{Error: "origin not allowed"}))
		return
	}

	var req Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, newMessage(MessageError, ErrorData{Error: "invalid message: " + err.Error()}))
		return
	}

	reply, code := s.dispatch(r.Context(), req)
	writeJSON(w, code, reply)
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// dispatch handles one control message and returns the reply with the HTTP
// status it maps to.
func (s *Server) dispatch(ctx context.Context, req Message) (Message, int) {
	switch req.Type {
	case MessageTriggerSync:
		s.controller.Trigger()
		return newMessage(MessageSyncTriggered, nil), http.StatusAccepted

	case MessageGetSyncStatus:
		return newMessage(MessageSyncStatus, s.controller.Status()), http.StatusOK

	case MessageEnableSync:
		if err := s.controller.Enable(ctx); err != nil {
			s.logger.Printf("Enable sync failed: %v", err)
			return newMessage(MessageError, ErrorData{Error: err.Error()}), http.StatusInternalServerError
		}
		return newMessage(MessageSyncSettings, s.controller.Settings()), http.StatusOK

	case MessageDisableSync:
		if err := s.controller.Disable(ctx); err != nil {
			s.logger.Printf("Disable sync failed: %v", err)
			return newMessage(MessageError, ErrorData{Error: err.Error()}), http.StatusInternalServerError
		}
		return newMessage(MessageSyncSettings, s.controller.Settings()), http.StatusOK

	default:
		return newMessage(MessageError, ErrorData{Error: fmt.Sprintf("unknown message type %q", req.Type)}), http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
