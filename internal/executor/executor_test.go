package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/engineclient"
	"github.com/comfyendpoints/runtime/internal/filestore"
)

func testContract() *domain.WorkflowContract {
	return &domain.WorkflowContract{
		ContractID: "c1",
		Version:    "1",
		Inputs: []domain.ContractField{
			{Name: "prompt", Type: domain.TypeString, Required: true, NodeID: "1"},
		},
		Outputs: []domain.ContractField{
			{Name: "caption", Type: domain.TypeString, NodeID: "10"},
		},
	}
}

func testWorkflow() map[string]any {
	return map[string]any{
		"1":  map[string]any{"class_type": "CLIPTextEncode", "inputs": map[string]any{"prompt": ""}},
		"10": map[string]any{"class_type": "api output", "inputs": map[string]any{"name": "caption"}},
	}
}

func TestRunJob_ScalarSuccess(t *testing.T) {
	var promptID atomic.Value
	promptID.Store("")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/prompt":
			json.NewEncoder(w).Encode(map[string]string{"prompt_id": "p1"})
		case "/history/p1":
			json.NewEncoder(w).Encode(map[string]any{"p1": map[string]any{"status": "success"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer store.Close()

	job, err := store.CreateJob(json.RawMessage(`{"prompt":"hello"}`))
	if err != nil {
		t.Fatalf("CreateJob() = %v", err)
	}

	exec := New(store, engineclient.New(srv.URL), testContract(), testWorkflow(), Config{
		OutputTimeout:       2 * time.Second,
		OutputPollInterval:  10 * time.Millisecond,
		ArtifactGracePeriod: 1 * time.Second,
	})

	go func() {
		time.Sleep(30 * time.Millisecond)
		if err := store.WriteArtifact(job.JobID, "caption", "done"); err != nil {
			t.Errorf("WriteArtifact() = %v", err)
		}
	}()

	exec.runJob(context.Background(), job.JobID)

	got, err := store.GetJob(job.JobID)
	if err != nil {
		t.Fatalf("GetJob() = %v", err)
	}
	if got.State != domain.JobCompleted {
		t.Fatalf("state = %s, error = %s, want completed", got.State, got.Error)
	}
	if got.OutputPayload.Result["caption"] != "done" {
		t.Errorf("result = %v, want caption=done", got.OutputPayload.Result)
	}
}

func TestRunJob_MissingRequiredInputFailsValidation(t *testing.T) {
	store, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	job, err := store.CreateJob(json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	exec := New(store, engineclient.New("http://127.0.0.1:1"), testContract(), testWorkflow(), Config{})
	exec.runJob(context.Background(), job.JobID)

	got, err := store.GetJob(job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.JobFailed {
		t.Fatalf("state = %s, want failed", got.State)
	}
	if got.Error == "" {
		t.Error("expected a VALIDATION_ERROR, got empty error")
	}
}

func TestRunJob_TimeoutWhenArtifactsNeverArrive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/prompt":
			json.NewEncoder(w).Encode(map[string]string{"prompt_id": "p2"})
		default:
			json.NewEncoder(w).Encode(map[string]any{})
		}
	}))
	defer srv.Close()

	store, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	job, err := store.CreateJob(json.RawMessage(`{"prompt":"hello"}`))
	if err != nil {
		t.Fatal(err)
	}

	exec := New(store, engineclient.New(srv.URL), testContract(), testWorkflow(), Config{
		OutputTimeout:      30 * time.Millisecond,
		OutputPollInterval: 5 * time.Millisecond,
	})
	exec.runJob(context.Background(), job.JobID)

	got, err := store.GetJob(job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.JobFailed {
		t.Fatalf("state = %s, want failed", got.State)
	}
	if got.Error == "" || !contains(got.Error, "OUTPUT_TIMEOUT:missing_artifacts:caption") {
		t.Errorf("error = %q, want OUTPUT_TIMEOUT:missing_artifacts:caption", got.Error)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
