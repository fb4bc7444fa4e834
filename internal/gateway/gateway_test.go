package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/engineclient"
	"github.com/comfyendpoints/runtime/internal/executor"
	"github.com/comfyendpoints/runtime/internal/filestore"
)

func testContract() *domain.WorkflowContract {
	return &domain.WorkflowContract{
		ContractID: "c1",
		Version:    "1",
		Inputs: []domain.ContractField{
			{Name: "prompt", Type: domain.TypeString, Required: true, NodeID: "1"},
			{Name: "seed", Type: domain.TypeInteger, NodeID: "2"},
		},
		Outputs: []domain.ContractField{
			{Name: "caption", Type: domain.TypeString, NodeID: "10"},
		},
	}
}

func newTestGateway(t *testing.T) (*Gateway, *filestore.Store) {
	t.Helper()
	store, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	exec := executor.New(store, engineclient.New("http://127.0.0.1:1"), testContract(), map[string]any{}, executor.Config{})

	g := New(Config{
		Store:    store,
		Exec:     exec,
		Contract: testContract(),
		APIKey:   "secret123",
		AppID:    "app1",
	})
	return g, store
}

func TestHandleHealthz_Public(t *testing.T) {
	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestAuth_MissingKeyRejected(t *testing.T) {
	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/contract", nil)
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuth_WrongKeyRejected(t *testing.T) {
	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/contract", nil)
	req.Header.Set("x-api-key", "wrong")
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestHandleContract_WithValidKey(t *testing.T) {
	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/contract", nil)
	req.Header.Set("x-api-key", "secret123")
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got domain.WorkflowContract
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ContractID != "c1" {
		t.Errorf("contract_id = %q, want c1", got.ContractID)
	}
}

func TestHandleRun_MissingRequiredInput(t *testing.T) {
	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("x-api-key", "secret123")
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body errorBody
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != "VALIDATION_ERROR" || body.Detail != "missing_required_input:prompt" {
		t.Errorf("body = %+v", body)
	}
}

func TestHandleRun_UnexpectedInput(t *testing.T) {
	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader([]byte(`{"prompt":"hi","bogus":1}`)))
	req.Header.Set("x-api-key", "secret123")
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleRun_Accepted(t *testing.T) {
	g, store := newTestGateway(t)
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader([]byte(`{"prompt":"hi"}`)))
	req.Header.Set("x-api-key", "secret123")
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["state"] != "queued" || body["job_id"] == "" {
		t.Errorf("body = %+v", body)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := store.GetJob(body["job_id"]); err != nil {
		t.Errorf("job not persisted: %v", err)
	}
}

func TestHandleFiles_UploadGetDownload(t *testing.T) {
	g, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/files", bytes.NewReader([]byte("hello bytes")))
	req.Header.Set("x-api-key", "secret123")
	req.Header.Set("content-type", "text/plain")
	req.Header.Set("x-file-name", "greeting.txt")
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201", w.Code)
	}
	var rec domain.FileRecord
	json.Unmarshal(w.Body.Bytes(), &rec)

	req = httptest.NewRequest(http.MethodGet, "/files/"+rec.FileID, nil)
	req.Header.Set("x-api-key", "secret123")
	w = httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/files/"+rec.FileID+"/download", nil)
	req.Header.Set("x-api-key", "secret123")
	w = httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d, want 200", w.Code)
	}
	if w.Body.String() != "hello bytes" {
		t.Errorf("download body = %q", w.Body.String())
	}
	if w.Header().Get("content-disposition") == "" {
		t.Error("missing content-disposition header")
	}
}

func TestHandleJobs_CancelUnknownJobNotFound(t *testing.T) {
	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodPost, "/jobs/nonexistent/cancel", nil)
	req.Header.Set("x-api-key", "secret123")
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
