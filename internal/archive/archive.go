package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"job-log-relay/internal/config"
)

// Sink mirrors accepted snapshots to a secondary durable location. Writes
// carry the same last-write-wins semantics as the primary store: each
// snapshot overwrites the previous one for the job.
type Sink interface {
	Store(ctx context.Context, jobID string, content []byte) error
}

// FromConfig selects a sink: S3 when a bucket is configured, a local
// directory when one is configured, or nil when archiving is disabled.
func FromConfig(ctx context.Context, cfg config.Config) (Sink, error) {
	if cfg.ArchiveS3Bucket != "" {
		return NewS3Sink(ctx, cfg)
	}
	if cfg.ArchiveDir != "" {
		return &LocalSink{baseDir: cfg.ArchiveDir}, nil
	}
	return nil, nil
}

// LocalSink writes snapshots as flat files under a base directory.
type LocalSink struct {
	baseDir string
}

// NewLocalSink constructs a sink rooted at baseDir.
func NewLocalSink(baseDir string) *LocalSink {
	return &LocalSink{baseDir: baseDir}
}

func (s *LocalSink) Store(_ context.Context, jobID string, content []byte) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(s.baseDir, sanitize(jobID)+".log")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}
	return nil
}

// sanitize strips characters that are unsafe in filenames from a job id.
func sanitize(name string) string {
	clean := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			clean = append(clean, r)
		}
	}
	if len(clean) == 0 {
		return "job"
	}
	return string(clean)
}
