package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

// statusSuperseded answers requests cancelled by a newer request for the
// same view.
const statusSuperseded = http.StatusConflict

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail logs err and answers with msg. Upstream detail stays in the log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(r.Context().Err(), context.Canceled) {
		slog.Debug("request superseded", slog.String("path", r.URL.Path))
		writeError(w, statusSuperseded, "Request superseded")
		return
	}
	slog.Warn(msg, slog.String("path", r.URL.Path), slog.Int("status", status), slog.Any("err", err))
	writeError(w, status, msg)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// pageParam returns the requested page, or 0 when no page was asked for.
func pageParam(r *http.Request) int {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
