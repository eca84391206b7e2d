package gcs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/angelmondragon/caisseflow/pkg/config"
)

type fakeGCS struct {
	mu      sync.Mutex
	uploads map[string]string
}

func newFakeGCS(t *testing.T) (*fakeGCS, *httptest.Server) {
	t.Helper()
	fake := &fakeGCS{uploads: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/storage/v1/b/ledger":
			_ = json.NewEncoder(w).Encode(map[string]string{"name": "ledger"})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/storage/v1/b/"):
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 404, "message": "not found"}})
		case r.Method == http.MethodPost && r.URL.Path == "/upload/storage/v1/b/ledger/o":
			body, _ := io.ReadAll(r.Body)
			name := r.URL.Query().Get("name")
			fake.mu.Lock()
			fake.uploads[name] = string(body)
			fake.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"bucket": "ledger", "name": name})
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)
	return fake, srv
}

func TestUploadSendsPayload(t *testing.T) {
	fake, srv := newFakeGCS(t)
	ctx := context.Background()

	client, err := NewClient(ctx, config.GCSConfig{LedgerBucket: "ledger", Endpoint: srv.URL + "/storage/v1/"}, config.GCPConfig{}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.Bucket() != "ledger" {
		t.Fatalf("unexpected bucket %q", client.Bucket())
	}

	if err := client.Upload(ctx, "ledger-snapshots/reg/FUND-CP-2026-10-0001.json", "application/json", []byte(`{"balance":"105000"}`)); err != nil {
		t.Fatalf("upload: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.uploads) != 1 {
		t.Fatalf("expected one upload, got %d", len(fake.uploads))
	}
	for _, body := range fake.uploads {
		if !strings.Contains(body, `"balance":"105000"`) {
			t.Fatalf("upload body missing payload: %s", body)
		}
	}
}

func TestNewClientFailsOnMissingBucket(t *testing.T) {
	_, srv := newFakeGCS(t)
	_, err := NewClient(context.Background(), config.GCSConfig{LedgerBucket: "absent", Endpoint: srv.URL + "/storage/v1/"}, config.GCPConfig{}, nil)
	if err == nil {
		t.Fatalf("expected ping failure for unknown bucket")
	}
	if !IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCSConfig{}, config.GCPConfig{}, nil); err == nil {
		t.Fatalf("expected bucket validation error")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if err := c.Upload(context.Background(), "x", "", nil); err == nil {
		t.Fatalf("expected error from nil client")
	}
}
