// Package httpapi is the ambient admin/health HTTP surface: a liveness
// probe, tracking-link routes (list, create, delete, report) and a
// /track/start debug hook. It is not the bot's chat transport, which this
// repository does not implement.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/necrasov-ilya/gpt-artifact-scrub/internal/tracking"
)

// startRequest is the body for the /track/start debug hook, mirroring the
// (payload, user_id) pair a real "start" command carries.
type startRequest struct {
	Payload string `json:"payload"`
	UserID  int64  `json:"user_id"`
}

// createLinkRequest is the body for issuing a new tracking link.
type createLinkRequest struct {
	Tag  string `json:"tag"`
	Slug string `json:"slug"`
}

// Server is the admin HTTP surface.
type Server struct {
	tracker *tracking.Tracker
	log     *log.Logger
}

// New constructs a Server. tracker may be nil, in which case the
// reporting routes answer 503.
func New(tracker *tracking.Tracker, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "httpapi ", log.LstdFlags|log.LUTC)
	}
	return &Server{tracker: tracker, log: logger}
}

// Router builds the chi mux for this surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/tracking", func(r chi.Router) {
		r.Get("/links", s.handleListLinks)
		r.Post("/links", s.handleCreateLink)
		r.Delete("/links/{linkID}", s.handleDeleteLink)
		r.Get("/links/{linkID}/report", s.handleLinkReport)
	})

	r.Post("/track/start", s.handleTrackStart)

	return r
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tag == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	link, startURL, err := s.tracker.Create(r.Context(), req.Tag, req.Slug)
	if err != nil {
		s.log.Printf("create link error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"link":      link,
		"start_url": startURL,
	})
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}
	linkID, err := strconv.ParseInt(chi.URLParam(r, "linkID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid link id", http.StatusBadRequest)
		return
	}
	deleted, err := s.tracker.Delete(r.Context(), linkID)
	if err != nil {
		s.log.Printf("delete link error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTrackStart is the admin-facing debug hook standing in for the chat
// transport's inbound "start" command, since that transport is external to
// this service.
func (s *Server) handleTrackStart(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" || req.UserID == 0 {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	link, firstStart, matched, err := s.tracker.HandleStart(r.Context(), req.Payload, req.UserID)
	if err != nil {
		s.log.Printf("track start error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matched":     matched,
		"first_start": firstStart,
		"link":        link,
	})
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}
	links, err := s.tracker.ListActiveLinks(r.Context())
	if err != nil {
		s.log.Printf("list links error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) handleLinkReport(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}
	linkID, err := strconv.ParseInt(chi.URLParam(r, "linkID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid link id", http.StatusBadRequest)
		return
	}
	since := r.URL.Query().Get("since")
	until := r.URL.Query().Get("until")
	report, err := s.tracker.Report(r.Context(), linkID, since, until)
	if err != nil {
		s.log.Printf("report error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
