package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"job-log-relay/internal/config"
	"job-log-relay/internal/models"
	"job-log-relay/internal/ratelimit"
	"job-log-relay/internal/signature"
	"job-log-relay/internal/store"
)

const testSecret = "s3cr3t"

// memStore is an in-memory LogStore with the same upsert semantics as the
// Postgres store.
type memStore struct {
	mu         sync.Mutex
	records    map[string]models.LogRecord
	upserts    int
	failUpsert error
}

func newMemStore() *memStore {
	return &memStore{records: map[string]models.LogRecord{}}
}

func (m *memStore) UpsertLog(_ context.Context, jobID string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		return m.failUpsert
	}
	m.upserts++
	m.records[jobID] = models.LogRecord{JobID: jobID, Content: string(content), UpdatedAt: time.Now()}
	return nil
}

func (m *memStore) FindByJobID(_ context.Context, jobID string) (models.LogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	if !ok {
		return models.LogRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) get(jobID string) (models.LogRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	return rec, ok
}

func newTestServer(st LogStore, secret string, limiter *ratelimit.TokenBucket) http.Handler {
	return New(config.Config{}, st, signature.StaticSecret(secret), limiter, nil).Router()
}

func pushRequest(jobID, secret, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/logs", strings.NewReader(body))
	if jobID != "" {
		req.Header.Set("X-GitHub-Job-ID", jobID)
	}
	req.Header.Set(signature.HeaderName, signature.Header(secret, []byte(body)))
	return req
}

func TestIngestStoresSnapshot(t *testing.T) {
	st := newMemStore()
	router := newTestServer(st, testSecret, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, pushRequest("abc123", testSecret, "hello\n"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"job_id":"abc123"`) {
		t.Fatalf("ack body missing job id: %s", w.Body.String())
	}

	rec, ok := st.get("abc123")
	if !ok || rec.Content != "hello\n" {
		t.Fatalf("stored record = %+v, want content %q", rec, "hello\n")
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	st := newMemStore()
	router := newTestServer(st, testSecret, nil)

	// Signature computed over a body with a trailing space instead of newline.
	req := httptest.NewRequest(http.MethodPost, "/logs", strings.NewReader("hello\n"))
	req.Header.Set("X-GitHub-Job-ID", "abc123")
	req.Header.Set(signature.HeaderName, signature.Header(testSecret, []byte("hello ")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if _, ok := st.get("abc123"); ok {
		t.Fatal("record created despite failed verification")
	}
}

func TestIngestRejectsMissingSignature(t *testing.T) {
	st := newMemStore()
	router := newTestServer(st, testSecret, nil)

	req := httptest.NewRequest(http.MethodPost, "/logs", strings.NewReader("hello\n"))
	req.Header.Set("X-GitHub-Job-ID", "abc123")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestIngestRejectsMissingJobID(t *testing.T) {
	st := newMemStore()
	router := newTestServer(st, testSecret, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, pushRequest("", testSecret, "hello\n"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if st.upserts != 0 {
		t.Fatal("storage written despite missing job id")
	}
}

func TestIngestFailsClosedWithoutSecret(t *testing.T) {
	st := newMemStore()
	router := newTestServer(st, "", nil)

	// Even a push signed with the empty secret must be rejected.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, pushRequest("abc123", "", "hello\n"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if st.upserts != 0 {
		t.Fatal("storage written with no configured secret")
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	st := newMemStore()
	router := newTestServer(st, testSecret, nil)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, pushRequest("abc123", testSecret, "same content\n"))
		if w.Code != http.StatusOK {
			t.Fatalf("push %d status = %d", i, w.Code)
		}
	}

	rec, _ := st.get("abc123")
	if rec.Content != "same content\n" {
		t.Fatalf("content = %q after duplicate push", rec.Content)
	}
}

func TestIngestLastSnapshotWins(t *testing.T) {
	st := newMemStore()
	router := newTestServer(st, testSecret, nil)

	snapshots := []string{"c1\n", "c1\nc2\n", "c1\nc2\nc3\n"}
	for _, snap := range snapshots {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, pushRequest("abc123", testSecret, snap))
		if w.Code != http.StatusOK {
			t.Fatalf("push %q status = %d", snap, w.Code)
		}
	}

	rec, _ := st.get("abc123")
	if rec.Content != "c1\nc2\nc3\n" {
		t.Fatalf("content = %q, want last snapshot", rec.Content)
	}
}

func TestIngestUpsertFailureIsGeneric(t *testing.T) {
	st := newMemStore()
	st.failUpsert = errors.New("pq: connection refused to db-internal-host:5432")
	router := newTestServer(st, testSecret, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, pushRequest("abc123", testSecret, "hello\n"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "db-internal-host") {
		t.Fatalf("response leaked internal error detail: %s", w.Body.String())
	}
}

func TestIngestRateLimited(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := ratelimit.NewTokenBucket(client, 2, 0.001, time.Minute)

	st := newMemStore()
	router := newTestServer(st, testSecret, limiter)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, pushRequest("abc123", testSecret, "hello\n"))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}
	if st.upserts != 2 {
		t.Fatalf("upserts = %d, want 2", st.upserts)
	}
}

func TestGetLog(t *testing.T) {
	st := newMemStore()
	_ = st.UpsertLog(context.Background(), "abc123", []byte("hello\n"))
	router := newTestServer(st, testSecret, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/abc123", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"content":"hello\n"`) {
		t.Fatalf("body = %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestServer(newMemStore(), testSecret, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
