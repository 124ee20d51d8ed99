package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"job-log-relay/internal/config"
	"job-log-relay/internal/lifecycle"
	"job-log-relay/internal/signature"
)

// ErrShippingFailed reports that the relay aborted after too many
// consecutive fetch or push failures. No log content is permanently lost:
// every prior successful push already delivered a full snapshot.
var ErrShippingFailed = errors.New("shipping failed")

// StatusFetcher reads a job's raw lifecycle status from the orchestration system.
type StatusFetcher interface {
	GetStatus(ctx context.Context, jobID string) (string, error)
}

// LogFetcher reads a job's full cumulative log content from the orchestration system.
type LogFetcher interface {
	GetLog(ctx context.Context, jobID string) ([]byte, error)
}

// Shipper relays one job's log to the collector: on each tick it fetches the
// job's status and full accumulated log, and pushes the snapshot signed with
// the shared secret. The loop runs until the job reaches a terminal phase
// (the tick that observes it still pushes, so the final content always
// lands) or the consecutive-failure threshold is exceeded.
type Shipper struct {
	jobID        string
	collectorURL string
	secret       string
	interval     time.Duration
	threshold    int
	relayID      string

	status     StatusFetcher
	logs       LogFetcher
	httpClient *http.Client
}

// New constructs a shipper for one job. The push client timeout defaults to
// the poll interval so a hung push cannot stall the loop past a tick.
func New(cfg config.Config, status StatusFetcher, logs LogFetcher) *Shipper {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 3
	}
	timeout := cfg.PushTimeout
	if timeout <= 0 {
		timeout = cfg.PollInterval
	}
	return &Shipper{
		jobID:        cfg.JobID,
		collectorURL: cfg.CollectorURL,
		secret:       cfg.SharedSecret,
		interval:     cfg.PollInterval,
		threshold:    threshold,
		relayID:      uuid.New().String(),
		status:       status,
		logs:         logs,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Run drives the poll/push loop until the job completes, the failure
// threshold is exceeded, or ctx is cancelled. A transient failure on any
// tick is retried on the next one; only threshold consecutive failures
// abort with ErrShippingFailed.
func (s *Shipper) Run(ctx context.Context) error {
	if s.jobID == "" {
		return fmt.Errorf("%w: job id is empty", ErrShippingFailed)
	}
	if s.collectorURL == "" {
		return fmt.Errorf("%w: collector url is empty", ErrShippingFailed)
	}
	if s.interval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrShippingFailed)
	}

	log.Printf("INFO: relay %s starting for job %s interval=%s", s.relayID, s.jobID, s.interval)

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		terminal, err := s.tick(ctx)
		if err != nil {
			consecutive++
			log.Printf("ERROR: relay %s tick failed (%d/%d): %v", s.relayID, consecutive, s.threshold, err)
			if consecutive >= s.threshold {
				return fmt.Errorf("%w: %d consecutive failures, last: %v", ErrShippingFailed, consecutive, err)
			}
		} else {
			consecutive = 0
			if terminal {
				log.Printf("INFO: relay %s delivered final snapshot for job %s", s.relayID, s.jobID)
				return nil
			}
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tick performs one poll/push cycle and reports whether the job has reached
// a terminal phase. The snapshot observed on a terminal tick is the final
// one; because the log fetch returns the full content to date, that push
// carries everything the job produced.
func (s *Shipper) tick(ctx context.Context) (bool, error) {
	rawStatus, err := s.status.GetStatus(ctx, s.jobID)
	if err != nil {
		return false, fmt.Errorf("get status: %w", err)
	}
	phase, recognized := lifecycle.Classify(rawStatus)
	if !recognized {
		log.Printf("WARN: relay %s: unrecognized status %q for job %s, treating as terminal", s.relayID, rawStatus, s.jobID)
	}

	// An empty log is still pushed; it establishes the record early.
	snapshot, err := s.logs.GetLog(ctx, s.jobID)
	if err != nil {
		return false, fmt.Errorf("get log: %w", err)
	}

	if err := s.push(ctx, snapshot); err != nil {
		return false, fmt.Errorf("push snapshot: %w", err)
	}
	return phase == lifecycle.PhaseTerminal, nil
}

func (s *Shipper) push(ctx context.Context, snapshot []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.collectorURL, bytes.NewReader(snapshot))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("X-GitHub-Job-ID", s.jobID)
	req.Header.Set("X-Relay-ID", s.relayID)
	req.Header.Set(signature.HeaderName, signature.Header(s.secret, snapshot))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}
	return nil
}
