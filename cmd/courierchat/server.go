package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"courierchat/internal/chat"
	"courierchat/internal/constants"
	"courierchat/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes the daemon's observability surface and a read-only view of
// the open conversations.
type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	sessions map[string]*chat.Session
	server   *http.Server
}

func NewServer(sessions map[string]*chat.Session, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		sessions: sessions,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	conversations := s.router.PathPrefix("/conversations").Subrouter()
	conversations.HandleFunc("/{peer}/messages", s.handleMessages()).Methods(http.MethodGet)
	conversations.HandleFunc("/{peer}/groups", s.handleGroups()).Methods(http.MethodGet)
	conversations.HandleFunc("/{peer}/typing", s.handleTyping()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	port := os.Getenv("PORT")
	if port == "" {
		port = fmt.Sprintf("%d", constants.DefaultServerPort)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %s", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, map[string]interface{}{
			"status":        "ok",
			"conversations": len(s.sessions),
		})
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, metrics.GetAllMetrics())
	}
}

func (s *Server) handleMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.sessionFor(w, r)
		if !ok {
			return
		}
		s.writeJSON(w, session.Messages())
	}
}

func (s *Server) handleGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.sessionFor(w, r)
		if !ok {
			return
		}
		s.writeJSON(w, session.Groups(time.Local))
	}
}

func (s *Server) handleTyping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.sessionFor(w, r)
		if !ok {
			return
		}
		s.writeJSON(w, map[string]bool{"is_typing": session.PeerIsTyping()})
	}
}

func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	peer := mux.Vars(r)["peer"]
	session, ok := s.sessions[peer]
	if !ok {
		http.Error(w, fmt.Sprintf(`{"error":"no open conversation with %s"}`, peer), http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
