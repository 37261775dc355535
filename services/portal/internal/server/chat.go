package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/BillK181/wedding-website/services/portal/internal/app"
)

const (
	msgTypeSomething = "Please type something!"
	msgLoginToChat   = "Please log in to chat."
	msgChatFailed    = "Sorry, I couldn't come up with a reply just now. Please try again."
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	// An undecodable body counts as an empty message, so the session check
	// inside Converse still runs first and anonymous callers get 401.
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		req.Message = ""
	}
	token, _ := s.sessionToken(r)
	reply, err := s.app.Converse(r.Context(), token, req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, chatResponse{Response: reply})
	case errors.Is(err, app.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, chatResponse{Response: msgLoginToChat})
	case errors.Is(err, app.ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, chatResponse{Response: msgTypeSomething})
	default:
		if !errors.Is(err, app.ErrGeneration) {
			internalLog(r, "chat failed", err)
		}
		writeJSON(w, http.StatusInternalServerError, chatResponse{Response: msgChatFailed})
	}
}
