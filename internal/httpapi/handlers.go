package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gofix/dm-monitor/pkg/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createMessage(w, r)
	case http.MethodGet:
		s.listMessages(w, r)
	default:
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	var msg types.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if msg.SenderUsername == "" || msg.RecipientUsername == "" || msg.Content == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "missing required fields: senderUsername, recipientUsername, content",
		})
		return
	}

	saved, status, err := s.store.UpsertMessage(r.Context(), &msg)
	if err != nil {
		s.logger.WithError(err).Error("Failed to upsert message")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	httpStatus := http.StatusOK
	if status == types.StatusCreated {
		httpStatus = http.StatusCreated
	}
	s.writeJSON(w, httpStatus, types.SaveResult{Status: status, Message: saved})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.ListMessages(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list messages")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if messages == nil {
		messages = []types.Message{}
	}
	s.writeJSON(w, http.StatusOK, messages)
}

type sessionRequest struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.upsertSession(w, r)
	case http.MethodGet:
		s.listSessions(w, r)
	default:
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}
}

func (s *Server) upsertSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Name == "" || req.Token == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing required fields: name, token"})
		return
	}

	sess, err := s.store.UpsertSession(r.Context(), req.Name, req.Token)
	if err != nil {
		s.logger.WithError(err).Error("Failed to upsert session")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	// Never echo the token back
	sess.Token = ""
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list sessions")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if s.status == nil {
		s.writeJSON(w, http.StatusOK, types.MonitorStatus{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.status.Status())
}
