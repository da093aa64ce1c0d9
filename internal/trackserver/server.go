// Package trackserver is an in-memory reference implementation of the
// pipetrack tracking API. It backs `pipetrack serve` for local
// development and the client test suite; the hosted service owns its own
// storage and consistency model.
package trackserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pipetrack/internal/cloud"
	"pipetrack/pkg/logging"
)

const apiKeyHeader = "api_key"

// Server holds pipeline run records keyed by id. Writes move a record
// to the tail of the ordering, so "latest" is always the most recently
// created or updated record.
type Server struct {
	mu        sync.Mutex
	apiKey    string
	pipelines map[string]cloud.Pipeline
	order     []string
	runs      map[string]map[string]any
}

// New creates a server that accepts requests carrying apiKey.
func New(apiKey string) *Server {
	return &Server{
		apiKey:    apiKey,
		pipelines: make(map[string]cloud.Pipeline),
		runs:      make(map[string]map[string]any),
	}
}

// Router builds the HTTP surface of the tracking API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleUpsert)
			r.Get("/latest", s.handleGetLatest)
			r.Get("/{id}", s.handleGet)
			r.Delete("/{id}", s.handleDelete)
		})

		r.Post("/runs", s.handleRunsNew)
		r.Get("/runs/{runid}/upload-link", s.handleUploadLink)
		r.Post("/runs/{runid}/trigger", s.handleTrigger)
	})

	// Upload target of the presigned link; the link itself is the grant.
	r.Put("/runs/{runid}/upload", s.handleUpload)

	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(apiKeyHeader) != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var p cloud.Pipeline
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if p.Status == "" {
		writeError(w, http.StatusBadRequest, "missing status")
		return
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	s.mu.Lock()
	if _, exists := s.pipelines[p.ID]; exists {
		s.unlink(p.ID)
	}
	// Fields are overwritten wholesale, not merged.
	s.pipelines[p.ID] = p
	s.order = append(s.order, p.ID)
	s.mu.Unlock()

	logging.Debug("trackserver", "upserted pipeline %s (%s)", p.ID, p.Status)
	writeJSON(w, http.StatusOK, map[string]string{"pipeline_id": p.ID})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	includeDag := r.URL.Query().Get("dag") == "true"

	s.mu.Lock()
	result := make([]cloud.Pipeline, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, view(s.pipelines[id], includeDag))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	includeDag := r.URL.Query().Get("dag") == "true"

	s.mu.Lock()
	p, ok := s.pipelines[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "pipeline not found")
		return
	}
	writeJSON(w, http.StatusOK, []cloud.Pipeline{view(p, includeDag)})
}

func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	includeDag := r.URL.Query().Get("dag") == "true"

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		writeError(w, http.StatusNotFound, "pipeline not found")
		return
	}
	p := s.pipelines[s.order[len(s.order)-1]]
	writeJSON(w, http.StatusOK, []cloud.Pipeline{view(p, includeDag)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	_, ok := s.pipelines[id]
	if ok {
		delete(s.pipelines, id)
		s.unlink(id)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "pipeline not found")
		return
	}
	logging.Debug("trackserver", "deleted pipeline %s", id)
	writeJSON(w, http.StatusOK, map[string]string{"pipeline_id": id})
}

func (s *Server) handleRunsNew(w http.ResponseWriter, r *http.Request) {
	metadata := map[string]any{}
	// An empty body is fine; metadata is optional.
	_ = json.NewDecoder(r.Body).Decode(&metadata)

	runid := uuid.NewString()
	s.mu.Lock()
	s.runs[runid] = metadata
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"runid": runid})
}

func (s *Server) handleUploadLink(w http.ResponseWriter, r *http.Request) {
	runid := chi.URLParam(r, "runid")
	if !s.runExists(runid) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	// The reference server doubles as its own storage backend.
	link := "http://" + r.Host + "/runs/" + runid + "/upload"
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.runExists(chi.URLParam(r, "runid")) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	runid := chi.URLParam(r, "runid")
	if !s.runExists(runid) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	logging.Info("trackserver", "triggered run %s", runid)
	writeJSON(w, http.StatusOK, map[string]string{"runid": runid})
}

func (s *Server) runExists(runid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[runid]
	return ok
}

// unlink removes id from the write ordering. Callers hold s.mu.
func (s *Server) unlink(id string) {
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func view(p cloud.Pipeline, includeDag bool) cloud.Pipeline {
	if !includeDag {
		p.Dag = nil
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("trackserver", err, "could not encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
