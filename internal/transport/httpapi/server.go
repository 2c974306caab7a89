package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sandevgo/ragline/internal/core"
	"github.com/sandevgo/ragline/internal/service/chat"
	"github.com/sandevgo/ragline/pkg/log"
)

// chatRequest mirrors the engine's TurnRequest. The toggle fields are
// pointers so an absent field falls back to the server default.
type chatRequest struct {
	SessionID            string `json:"session_id"`
	Message              string `json:"message"`
	VectorStoreDir       string `json:"vector_store_dir"`
	TopK                 int    `json:"top_k"`
	EnableContext        *bool  `json:"enable_context"`
	EnableSummarisation  *bool  `json:"enable_summarisation"`
	EnableIntentTracking *bool  `json:"enable_intent_tracking"`
	SystemPrompt         string `json:"system_prompt"`
}

// Server is the thin HTTP adapter over the chat engine.
type Server struct {
	engine *chat.Engine
	srv    *http.Server
}

func NewServer(addr string, engine *chat.Engine) *Server {
	s := &Server{engine: engine}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/history/{session_id}", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Str("addr", s.srv.Addr).Msg("http server listening")

	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat streams the assistant reply as plain text. The session id,
// generated or echoed, travels in a response header since the body is the
// raw reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	stream, err := s.engine.Chat(r.Context(), chat.TurnRequest{
		SessionID:     req.SessionID,
		Message:       req.Message,
		StoreDir:      req.VectorStoreDir,
		TopK:          req.TopK,
		EnableContext: req.EnableContext,
		EnableSummary: req.EnableSummarisation,
		EnableIntents: req.EnableIntentTracking,
		SystemPrompt:  req.SystemPrompt,
	})
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.FromCtx(r.Context()).Error().Err(err).Msg("chat request failed")
		writeError(w, http.StatusInternalServerError, "chat request failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Session-ID", stream.SessionID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for fragment := range stream.Fragments {
		if _, err := w.Write([]byte(fragment)); err != nil {
			// Client went away; the engine finishes the turn server-side.
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := stream.Wait(); err != nil {
		// Headers are already sent; the failure is only loggable here.
		log.FromCtx(r.Context()).Error().Err(err).
			Str("session_id", stream.SessionID).
			Msg("turn failed mid-stream")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	snap, err := s.engine.History(sessionID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "no chat session found for id '"+sessionID+"'")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.engine.Sessions()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
