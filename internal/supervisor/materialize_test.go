package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/comfyendpoints/runtime/internal/config"
)

func TestMaterializeFiles_WritesInlineContentWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Engine: config.EngineConfig{
		ContractPath:   filepath.Join(dir, "contract.json"),
		WorkflowPath:   filepath.Join(dir, "workflow.json"),
		ContractInline: `{"contract_id":"c","version":"1","inputs":[],"outputs":[]}`,
		WorkflowInline: `{}`,
	}}

	if err := materializeFiles(cfg); err != nil {
		t.Fatalf("materializeFiles: %v", err)
	}

	contractBytes, err := os.ReadFile(cfg.Engine.ContractPath)
	if err != nil {
		t.Fatalf("read contract: %v", err)
	}
	if string(contractBytes) != cfg.Engine.ContractInline {
		t.Fatalf("contract content = %q, want %q", contractBytes, cfg.Engine.ContractInline)
	}
}

func TestMaterializeFiles_DoesNotOverwriteExistingFile(t *testing.T) {
	dir := t.TempDir()
	contractPath := filepath.Join(dir, "contract.json")
	existing := `{"contract_id":"original","version":"1","inputs":[],"outputs":[]}`
	if err := os.WriteFile(contractPath, []byte(existing), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	cfg := &config.Config{Engine: config.EngineConfig{
		ContractPath:   contractPath,
		ContractInline: `{"contract_id":"replacement"}`,
	}}

	if err := materializeFiles(cfg); err != nil {
		t.Fatalf("materializeFiles: %v", err)
	}

	got, err := os.ReadFile(contractPath)
	if err != nil {
		t.Fatalf("read contract: %v", err)
	}
	if string(got) != existing {
		t.Fatalf("contract was overwritten: %q", got)
	}
}

func TestLoadArtifactSpecs_EmptyPathReturnsNil(t *testing.T) {
	specs, err := loadArtifactSpecs("")
	if err != nil {
		t.Fatalf("loadArtifactSpecs: %v", err)
	}
	if specs != nil {
		t.Fatalf("specs = %v, want nil", specs)
	}
}

func TestLoadArtifactSpecs_MissingFileReturnsNil(t *testing.T) {
	specs, err := loadArtifactSpecs(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("loadArtifactSpecs: %v", err)
	}
	if specs != nil {
		t.Fatalf("specs = %v, want nil", specs)
	}
}

func TestLoadArtifactSpecs_ParsesDeclaredSpecs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "specs.json")
	content := `[{"kind":"model","match":"sd_xl.safetensors","source_url":"https://example.test/sd_xl.safetensors","target_subdir":"checkpoints"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed specs: %v", err)
	}

	specs, err := loadArtifactSpecs(path)
	if err != nil {
		t.Fatalf("loadArtifactSpecs: %v", err)
	}
	if len(specs) != 1 || specs[0].Match != "sd_xl.safetensors" {
		t.Fatalf("specs = %+v", specs)
	}
}

func TestLoadGraphFiles_ReadsAndValidatesContract(t *testing.T) {
	dir := t.TempDir()
	contractPath := filepath.Join(dir, "contract.json")
	workflowPath := filepath.Join(dir, "workflow.json")

	contract := `{
		"contract_id": "demo",
		"version": "1",
		"inputs": [{"name":"prompt","type":"string","required":true,"node_id":"1"}],
		"outputs": [{"name":"image","type":"image/png","node_id":"2"}]
	}`
	if err := os.WriteFile(contractPath, []byte(contract), 0o644); err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	workflow := `{
		"1": {"class_type":"CLIPTextEncode","inputs":{"text":"x"}},
		"2": {"class_type":"api output","inputs":{"name":"image","type":"image/png","value":""}}
	}`
	if err := os.WriteFile(workflowPath, []byte(workflow), 0o644); err != nil {
		t.Fatalf("seed workflow: %v", err)
	}

	cfg := &config.Config{Engine: config.EngineConfig{ContractPath: contractPath, WorkflowPath: workflowPath}}
	loadedContract, loadedWorkflow, err := loadGraphFiles(cfg)
	if err != nil {
		t.Fatalf("loadGraphFiles: %v", err)
	}
	if loadedContract.ContractID != "demo" {
		t.Fatalf("contract id = %q", loadedContract.ContractID)
	}
	if len(loadedWorkflow) != 2 {
		t.Fatalf("workflow = %+v", loadedWorkflow)
	}
}

func TestLoadGraphFiles_OutputNodeNotAPIOutputFailsValidation(t *testing.T) {
	dir := t.TempDir()
	contractPath := filepath.Join(dir, "contract.json")
	workflowPath := filepath.Join(dir, "workflow.json")

	contract := `{
		"contract_id": "demo",
		"version": "1",
		"inputs": [{"name":"prompt","type":"string","required":true,"node_id":"1"}],
		"outputs": [{"name":"image","type":"image/png","node_id":"2"}]
	}`
	if err := os.WriteFile(contractPath, []byte(contract), 0o644); err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	workflow := `{
		"1": {"class_type":"CLIPTextEncode","inputs":{"text":"x"}},
		"2": {"class_type":"SaveImage","inputs":{"images":"x"}}
	}`
	if err := os.WriteFile(workflowPath, []byte(workflow), 0o644); err != nil {
		t.Fatalf("seed workflow: %v", err)
	}

	cfg := &config.Config{Engine: config.EngineConfig{ContractPath: contractPath, WorkflowPath: workflowPath}}
	if _, _, err := loadGraphFiles(cfg); err == nil {
		t.Fatal("expected rejection: output field node_id 2 is not an api output node")
	}
}

func TestLoadGraphFiles_OutputNodeMissingFailsValidation(t *testing.T) {
	dir := t.TempDir()
	contractPath := filepath.Join(dir, "contract.json")
	workflowPath := filepath.Join(dir, "workflow.json")

	contract := `{
		"contract_id": "demo",
		"version": "1",
		"inputs": [{"name":"prompt","type":"string","required":true,"node_id":"1"}],
		"outputs": [{"name":"image","type":"image/png","node_id":"missing"}]
	}`
	if err := os.WriteFile(contractPath, []byte(contract), 0o644); err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	workflow := `{"1": {"class_type":"CLIPTextEncode","inputs":{"text":"x"}}}`
	if err := os.WriteFile(workflowPath, []byte(workflow), 0o644); err != nil {
		t.Fatalf("seed workflow: %v", err)
	}

	cfg := &config.Config{Engine: config.EngineConfig{ContractPath: contractPath, WorkflowPath: workflowPath}}
	if _, _, err := loadGraphFiles(cfg); err == nil {
		t.Fatal("expected rejection: output field node_id does not exist in the workflow")
	}
}

func TestLoadGraphFiles_InvalidContractFailsValidation(t *testing.T) {
	dir := t.TempDir()
	contractPath := filepath.Join(dir, "contract.json")
	workflowPath := filepath.Join(dir, "workflow.json")

	if err := os.WriteFile(contractPath, []byte(`{"contract_id":"demo","version":"1","inputs":[],"outputs":[]}`), 0o644); err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	if err := os.WriteFile(workflowPath, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("seed workflow: %v", err)
	}

	cfg := &config.Config{Engine: config.EngineConfig{ContractPath: contractPath, WorkflowPath: workflowPath}}
	if _, _, err := loadGraphFiles(cfg); err == nil {
		t.Fatal("expected validation error for contract with no inputs/outputs")
	}
}
