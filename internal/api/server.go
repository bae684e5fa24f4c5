// Package api exposes the analysis service over REST. Error kinds map to
// status codes so the UI can tell "no data" from "computation failed".
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"r4r-detector/internal/app"
	"r4r-detector/internal/config"
	"r4r-detector/internal/detector"
	"r4r-detector/internal/errs"
)

// Server provides the REST API over the analysis service.
type Server struct {
	service *app.AnalysisService
	config  config.ServerConfig
	router  chi.Router
}

// APIResponse is the standard response envelope.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewServer creates the API server and sets up its routes.
func NewServer(service *app.AnalysisService, cfg config.ServerConfig) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 90 * time.Second
	}

	s := &Server{
		service: service,
		config:  cfg,
		router:  chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.config.WriteTimeout))

	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	if s.config.EnableAuth {
		s.router.Use(s.authMiddleware)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Get("/analyze/{userkey}", s.handleAnalyze)
		r.Get("/summary/{userkey}", s.handleSummary)
		r.Post("/network", s.handleNetwork)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handleUpdateConfig)
	})
}

// Start starts the API server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.Printf("Starting API server on %s", addr)
	return server.ListenAndServe()
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, s.service.Stats())
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	userkey := chi.URLParam(r, "userkey")

	report, err := s.service.Analyze(r.Context(), userkey)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeData(w, http.StatusOK, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userkey := chi.URLParam(r, "userkey")

	summary, err := s.service.Summarize(r.Context(), userkey)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeData(w, http.StatusOK, summary)
}

type networkRequest struct {
	Userkeys []string `json:"userkeys"`
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	var req networkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.DataFormat("decoding request body"))
		return
	}

	scan, err := s.service.AnalyzeNetwork(r.Context(), req.Userkeys)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeData(w, http.StatusOK, scan)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, s.service.Engine().Config())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var engineConfig detector.Config
	if err := json.NewDecoder(r.Body).Decode(&engineConfig); err != nil {
		s.writeError(w, errs.DataFormat("decoding engine config"))
		return
	}

	if err := s.service.UpdateEngineConfig(engineConfig); err != nil {
		s.writeError(w, errs.DataFormat("%v", err))
		return
	}

	s.writeData(w, http.StatusOK, map[string]string{"status": "config_updated"})
}

// Middleware

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey != s.config.APIKey {
			log.Printf("Authentication failed from %s", r.RemoteAddr)
			s.writeJSON(w, http.StatusUnauthorized, APIResponse{
				Success:   false,
				Error:     "authentication required",
				Timestamp: time.Now(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Utilities

func (s *Server) writeData(w http.ResponseWriter, status int, data interface{}) {
	s.writeJSON(w, status, APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusForError(err), APIResponse{
		Success:   false,
		Error:     err.Error(),
		ErrorKind: errs.Kind(err),
		Timestamp: time.Now(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrDataFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errs.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
