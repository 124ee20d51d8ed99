package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"job-log-relay/internal/archive"
	"job-log-relay/internal/config"
	"job-log-relay/internal/models"
	"job-log-relay/internal/ratelimit"
	"job-log-relay/internal/signature"
	"job-log-relay/internal/store"
	"job-log-relay/internal/telemetry"
)

// LogStore is the key-value persistence surface the collector writes to and
// downstream viewers read from.
type LogStore interface {
	UpsertLog(ctx context.Context, jobID string, content []byte) error
	FindByJobID(ctx context.Context, jobID string) (models.LogRecord, error)
}

// Server wires HTTP handlers for the ingestion service.
type Server struct {
	cfg     config.Config
	store   LogStore
	secrets signature.SecretProvider
	limiter *ratelimit.TokenBucket
	archive archive.Sink
}

// New constructs the collector server. limiter and sink may be nil.
func New(cfg config.Config, st LogStore, secrets signature.SecretProvider, limiter *ratelimit.TokenBucket, sink archive.Sink) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		secrets: secrets,
		limiter: limiter,
		archive: sink,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/logs", s.handleIngest)
	r.Get("/logs/{jobID}", s.handleGetLog)
	return r
}

type ackResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// handleIngest authenticates and durably applies one pushed snapshot. The
// signature is verified over the exact raw body bytes before any header
// extraction; nothing is written on a failed check.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unable to read request body", http.StatusBadRequest)
		return
	}

	secret, err := s.secrets.Secret()
	if err != nil || secret == "" {
		// Operational alarm, not a per-request error: with no secret every
		// push is rejected so an attacker cannot slip through unchecked.
		log.Printf("ERROR: shared secret not configured, rejecting all pushes")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	digest, ok := signature.FromHeader(r.Header.Get(signature.HeaderName))
	if !ok || !signature.Verify(secret, body, digest) {
		telemetry.AuthRejects.Inc()
		log.Printf("WARN: rejected push with bad signature from %s relay=%s", r.RemoteAddr, r.Header.Get("X-Relay-ID"))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	jobID := r.Header.Get("X-GitHub-Job-ID")
	if jobID == "" {
		telemetry.BadRequests.Inc()
		http.Error(w, "missing job id header", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), "push:"+jobID)
		if err != nil {
			// A limiter backend outage must not drop log data; let the push through.
			log.Printf("WARN: rate limiter unavailable: %v", err)
		} else if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	if err := s.store.UpsertLog(r.Context(), jobID, body); err != nil {
		telemetry.UpsertFailures.Inc()
		log.Printf("ERROR: upsert log for job %s: %v", jobID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if s.archive != nil {
		// The archive is a mirror; a failed mirror write never fails the push.
		if err := s.archive.Store(r.Context(), jobID, body); err != nil {
			telemetry.ArchiveFailures.Inc()
			log.Printf("ERROR: archive snapshot for job %s: %v", jobID, err)
		}
	}

	telemetry.SnapshotsAccepted.Inc()
	telemetry.SnapshotBytes.Set(float64(len(body)))
	writeJSON(w, http.StatusOK, ackResponse{Message: "log snapshot stored", JobID: jobID})
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	rec, err := s.store.FindByJobID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "log record not found", http.StatusNotFound)
			return
		}
		log.Printf("ERROR: find log for job %s: %v", jobID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
