// Package mockbackend is a development stand-in for the generation backend:
// the REST job API, the per-job WebSocket, the admin endpoints and a small
// object store, all served from one chi router.
package mockbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/flock"
	"github.com/gorilla/websocket"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
	"github.com/raysh454/sitegen/internal/upload"
)

type ctxKey int

const ownerKey ctxKey = iota

const maxObjectBytes = 10 << 20

// Server is the HTTP + WebSocket surface of the mock backend.
type Server struct {
	cfg      Config
	pipeline *Pipeline
	store    *upload.FSStore
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
	lock     *flock.Flock
}

// NewServer creates a Server with its own Pipeline.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("mockbackend")
	}
	logger = logger.With(logging.Field{Key: "component", Value: "mockbackend"})

	if cfg.Bucket == "" {
		cfg.Bucket = DefaultConfig().Bucket
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://" + cfg.ListenAddr
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	store, err := upload.NewFSStore(filepath.Join(cfg.StorageDir, cfg.Bucket), cfg.PublicURL+"/storage/"+cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("creating mock storage: %w", err)
	}

	// One mock backend per storage dir.
	lock := flock.New(filepath.Join(cfg.StorageDir, "mockbackend.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire storage lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("storage dir %s is in use by another mock backend", cfg.StorageDir)
	}

	s := &Server{
		cfg:      cfg,
		pipeline: NewPipeline(cfg, logger),
		store:    store,
		router:   chi.NewRouter(),
		logger:   logger,
		lock:     lock,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s, nil
}

// Pipeline returns the underlying job simulator.
func (s *Server) Pipeline() *Pipeline { return s.pipeline }

func (s *Server) routes() {
	r := s.router
	r.Use(s.corsMiddleware)
	r.Options("/*", s.optionsHandler)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/api/jobs/generate", s.handleGenerate)
		r.Get("/api/jobs", s.handleListJobs)
		r.Get("/api/jobs/{jobID}", s.handleGetJob)
		r.Get("/api/jobs/{jobID}/progress", s.handleGetProgress)
		r.Delete("/api/jobs/{jobID}", s.handleDeleteJob)

		r.Get("/api/ws/jobs/{jobID}", s.handleJobWS)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Get("/users", s.handleAdminUsers)
			r.Get("/jobs", s.handleAdminJobs)
			r.Get("/stats", s.handleAdminStats)
		})

		r.Put("/storage/{bucket}/*", s.handlePutObject)
		r.Delete("/storage/{bucket}/*", s.handleDeleteObject)
	})

	// Stored objects are public, like a CDN bucket.
	r.Get("/storage/{bucket}/*", s.handleGetObject)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if s.cfg.Token != "" && tok != s.cfg.Token && tok != s.cfg.AdminToken {
			writeDetail(w, http.StatusUnauthorized, "Invalid authentication credentials")
			return
		}
		s.pipeline.Touch(tok)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, tok)))
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken != "" && owner(r) != s.cfg.AdminToken {
			writeDetail(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func owner(r *http.Request) string {
	v, _ := r.Context().Value(ownerKey).(string)
	return v
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		q.Del("token")
		fields = append(fields, logging.Field{Key: "query", Value: q.Encode()})
	}

	if r.Body != nil && r.Method == http.MethodPost && strings.Contains(r.Header.Get("Content-Type"), "json") {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close stops every simulated job and releases the storage lock.
func (s *Server) Close() {
	s.pipeline.Close()
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release storage lock", logging.Err(err))
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

type validationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func listFilter(r *http.Request) model.JobListFilter {
	q := r.URL.Query()
	f := model.JobListFilter{Status: model.JobStatus(q.Get("status")), Limit: 20}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		f.Limit = min(v, 100)
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		f.Offset = v
	}
	return f
}

// --- Jobs ---

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.BusinessInfo.CompanyName) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, []validationIssue{{
			Loc:  []string{"body", "business_info", "company_name"},
			Msg:  "field required",
			Type: "value_error.missing",
		}})
		return
	}

	job, err := s.pipeline.StartJob(req, owner(r))
	if err != nil {
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.GenerateResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Website generation started",
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.List(owner(r), listFilter(r)))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.pipeline.Get(chi.URLParam(r, "jobID"), owner(r))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	steps, ok := s.pipeline.Steps(jobID, owner(r))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "steps": steps})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if !s.pipeline.Delete(jobID, owner(r)) {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	s.logger.Info("deleted job", logging.Field{Key: "job_id", Value: jobID})
	w.WriteHeader(http.StatusNoContent)
}

// --- Admin ---

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r)
	writeJSON(w, http.StatusOK, s.pipeline.Users(f.Limit, f.Offset))
}

func (s *Server) handleAdminJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.List("", listFilter(r)))
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Stats())
}

// --- WebSocket ---

func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	events, unsubscribe, ok := s.pipeline.Subscribe(jobID, owner(r))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	// Drain client frames so a client close ends the subscription.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				unsubscribe()
				return
			}
		}
	}()

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Debug("websocket client gone", logging.Field{Key: "job_id", Value: jobID})
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"),
		time.Now().Add(time.Second))
}

// --- Storage ---

func (s *Server) objectKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	if chi.URLParam(r, "bucket") != s.cfg.Bucket {
		writeDetail(w, http.StatusNotFound, "Bucket not found")
		return "", false
	}
	key := chi.URLParam(r, "*")
	if err := upload.ValidateKey(key); err != nil {
		writeDetail(w, http.StatusBadRequest, apperr.UserMessage(err))
		return "", false
	}
	return key, true
}

func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request) {
	key, ok := s.objectKey(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxObjectBytes+1))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "could not read body")
		return
	}
	if len(body) > maxObjectBytes {
		writeDetail(w, http.StatusRequestEntityTooLarge, "object too large")
		return
	}
	url, err := s.store.Put(r.Context(), key, body, r.Header.Get("Content-Type"))
	if err != nil {
		s.logger.Warn("storing object", logging.Err(err))
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"key": key, "url": url, "size": len(body)})
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	key, ok := s.objectKey(w, r)
	if !ok {
		return
	}
	data, err := s.store.Get(r.Context(), key)
	if err != nil {
		if apperr.IsNotFound(err) {
			writeDetail(w, http.StatusNotFound, "Object not found")
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, _ = w.Write(data)
}

func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	key, ok := s.objectKey(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), key); err != nil && !errors.Is(err, context.Canceled) {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
