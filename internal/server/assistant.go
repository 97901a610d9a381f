package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bryan-buckman/termread/internal/llm"
)

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req llm.SummarizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	sum, err := s.deps.LLM.Summarize(r.Context(), req)
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		writeError(w, http.StatusBadRequest, llm.MissingKeyMessage)
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, "Failed to generate summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req llm.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	res, err := s.deps.LLM.Chat(r.Context(), req)
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		writeError(w, http.StatusBadRequest, llm.MissingKeyMessage)
		return
	case errors.Is(err, llm.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, "Chat input is required")
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, "Failed to get chat response", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleModels lists gateway models. The key comes from a bearer token or
// the openRouterKey parameter.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if key == "" {
		key = strings.TrimSpace(r.URL.Query().Get("openRouterKey"))
	}
	ids, err := s.deps.LLM.Models(r.Context(), key)
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		writeError(w, http.StatusBadRequest, llm.MissingKeyMessage)
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, "Failed to fetch models", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": ids})
}
