package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/feiwu/aibrief/internal/store"
	"github.com/feiwu/aibrief/pkg/rank"
)

// Server provides the HTTP API.
type Server struct {
	store  store.Store
	engine *rank.Engine
	port   int
}

// New creates a new HTTP server.
func New(s store.Store, engine *rank.Engine, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{store: s, engine: engine, port: port}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/clusters", s.handleClusters)
	mux.HandleFunc("/api/v1/repos", s.handleRepos)
	mux.HandleFunc("/api/v1/feedback", s.handleFeedback)

	addr := fmt.Sprintf(":%d", s.port)
	fmt.Printf("aibrief server listening on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	cfg := s.engine.Config()
	limit := queryInt(r, "limit", cfg.TopNews)
	hours := queryInt(r, "hours", cfg.WindowHours)

	clusters, err := s.engine.TopClusters(r.Context(), limit, hours)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  clusters,
		"count": len(clusters),
	})
}

func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit := queryInt(r, "limit", s.engine.Config().TopRepos)

	repos, err := s.engine.TopRepos(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  repos,
		"count": len(repos),
	})
}

type feedbackRequest struct {
	Kind   string `json:"kind"`
	RefID  int64  `json:"ref_id"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
	UserID string `json:"user_id"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Kind != store.KindNews && req.Kind != store.KindRepo {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be news or repo"})
		return
	}
	if req.RefID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ref_id required"})
		return
	}

	if err := s.store.AddFeedback(r.Context(), req.Kind, req.RefID, req.Label, req.Reason, req.UserID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
