package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Sane(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Gateway.ListenPort != 8188 {
		t.Fatalf("ListenPort = %d, want 8188", cfg.Gateway.ListenPort)
	}
	if cfg.Output.Workers != 8 {
		t.Fatalf("Workers = %d, want 8", cfg.Output.Workers)
	}
	if cfg.Observability.Tracing.Enabled {
		t.Fatal("tracing should default to disabled")
	}
	if !cfg.Observability.Metrics.Enabled {
		t.Fatal("metrics should default to enabled")
	}
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"gateway": {"listen_port": 9000, "api_key": "secret"}, "output": {"workers": 4}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Gateway.ListenPort != 9000 {
		t.Fatalf("ListenPort = %d, want 9000", cfg.Gateway.ListenPort)
	}
	if cfg.Gateway.APIKey != "secret" {
		t.Fatalf("APIKey = %q, want secret", cfg.Gateway.APIKey)
	}
	if cfg.Output.Workers != 4 {
		t.Fatalf("Workers = %d, want 4", cfg.Output.Workers)
	}
	// Untouched fields still carry their defaults.
	if cfg.Engine.ComfyURL != "http://127.0.0.1:8000" {
		t.Fatalf("ComfyURL = %q, want default", cfg.Engine.ComfyURL)
	}
}

func TestLoadFromYAMLFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "gateway:\n  listen_port: 9100\nengine:\n  comfy_url: http://engine:9000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	cfg, err := LoadFromYAMLFile(path)
	if err != nil {
		t.Fatalf("LoadFromYAMLFile: %v", err)
	}
	if cfg.Gateway.ListenPort != 9100 {
		t.Fatalf("ListenPort = %d, want 9100", cfg.Gateway.ListenPort)
	}
	if cfg.Engine.ComfyURL != "http://engine:9000" {
		t.Fatalf("ComfyURL = %q, want http://engine:9000", cfg.Engine.ComfyURL)
	}
}

func TestLoadFromEnv_OverridesConfig(t *testing.T) {
	t.Setenv("COMFYRT_LISTEN_PORT", "7000")
	t.Setenv("COMFYRT_API_KEY", "env-key")
	t.Setenv("COMFYRT_WATCH_PATHS", "/a,/b,/c")
	t.Setenv("COMFYRT_ENGINE_COMMAND", "python main.py --listen 0.0.0.0")
	t.Setenv("COMFYRT_TRACING_ENABLED", "true")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Gateway.ListenPort != 7000 {
		t.Fatalf("ListenPort = %d, want 7000", cfg.Gateway.ListenPort)
	}
	if cfg.Gateway.APIKey != "env-key" {
		t.Fatalf("APIKey = %q, want env-key", cfg.Gateway.APIKey)
	}
	if len(cfg.Cache.WatchPaths) != 3 || cfg.Cache.WatchPaths[1] != "/b" {
		t.Fatalf("WatchPaths = %v", cfg.Cache.WatchPaths)
	}
	if len(cfg.Engine.Command) != 4 || cfg.Engine.Command[0] != "python" {
		t.Fatalf("Command = %v", cfg.Engine.Command)
	}
	if !cfg.Observability.Tracing.Enabled {
		t.Fatal("tracing should be enabled after env override")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.TimeoutSeconds = 2.5
	cfg.Output.PollSeconds = 0.5
	cfg.Output.ArtifactGraceSecond = 1
	cfg.Engine.ReadyTimeoutSeconds = 10
	cfg.Engine.ReadyPollSeconds = 0.25

	if cfg.OutputTimeout() != 2500*time.Millisecond {
		t.Fatalf("OutputTimeout = %v", cfg.OutputTimeout())
	}
	if cfg.OutputPollInterval() != 500*time.Millisecond {
		t.Fatalf("OutputPollInterval = %v", cfg.OutputPollInterval())
	}
	if cfg.ArtifactGracePeriod() != time.Second {
		t.Fatalf("ArtifactGracePeriod = %v", cfg.ArtifactGracePeriod())
	}
	if cfg.EngineReadyTimeout() != 10*time.Second {
		t.Fatalf("EngineReadyTimeout = %v", cfg.EngineReadyTimeout())
	}
	if cfg.EngineReadyPollInterval() != 250*time.Millisecond {
		t.Fatalf("EngineReadyPollInterval = %v", cfg.EngineReadyPollInterval())
	}
}
