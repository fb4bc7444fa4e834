// Package config defines the runtime's startup configuration: gateway
// bind address, engine location, storage roots, cache reconciliation
// settings, and the output-collection timings. Settings load in three
// layers — DefaultConfig, then an optional file (JSON or YAML), then
// COMFYRT_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GatewayConfig holds the HTTP bind settings and the per-app secret.
type GatewayConfig struct {
	ListenHost string `json:"listen_host" yaml:"listen_host"`
	ListenPort int    `json:"listen_port" yaml:"listen_port"`
	APIKey     string `json:"api_key" yaml:"api_key"` // compared constant-time against the x-api-key header
	AppID      string `json:"app_id" yaml:"app_id"`   // owner tag stamped on generated files
}

// EngineConfig points at the engine's HTTP endpoint and the contract and
// workflow template files describing its graph.
type EngineConfig struct {
	ComfyURL     string `json:"comfy_url" yaml:"comfy_url"`
	ContractPath string `json:"contract_path" yaml:"contract_path"`
	WorkflowPath string `json:"workflow_path" yaml:"workflow_path"`

	// Command launches the engine subprocess, e.g. ["python", "main.py",
	// "--listen", "127.0.0.1", "--port", "8000"]. Left empty when the
	// engine is already running and the Supervisor should only reconcile
	// artifacts and submit the preflight graph against ComfyURL.
	Command []string `json:"command" yaml:"command"`

	// ContractInline/WorkflowInline are written to ContractPath/
	// WorkflowPath if those files do not already exist, so a deployment
	// can pass the contract and workflow as configuration-embedded JSON
	// instead of pre-placed files.
	ContractInline string `json:"contract_inline" yaml:"contract_inline"`
	WorkflowInline string `json:"workflow_inline" yaml:"workflow_inline"`

	ReadyTimeoutSeconds float64 `json:"ready_timeout_seconds" yaml:"ready_timeout_seconds"` // default 60
	ReadyPollSeconds    float64 `json:"ready_poll_seconds" yaml:"ready_poll_seconds"`        // default 1
}

// StorageConfig holds the on-disk roots the File Store and the per-job
// artifact collector write under.
type StorageConfig struct {
	StateDBPath  string `json:"state_db_path" yaml:"state_db_path"`
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir"`
}

// CacheConfig holds the content-addressed cache reconciliation settings
// (see internal/cachemgr).
type CacheConfig struct {
	CacheRoot     string   `json:"cache_root" yaml:"cache_root"`
	WatchPaths    []string `json:"watch_paths" yaml:"watch_paths"`
	MinFileSizeMB int64    `json:"min_file_size_mb" yaml:"min_file_size_mb"`
}

// ArtifactsConfig holds the resolver's models/custom-nodes roots, used at
// startup to reconcile the engine's expected directory layout.
type ArtifactsConfig struct {
	CacheModelsRoot string `json:"cache_models_root" yaml:"cache_models_root"`
	CustomNodesRoot string `json:"custom_nodes_root" yaml:"custom_nodes_root"`
	EngineModelsDir string `json:"engine_models_dir" yaml:"engine_models_dir"`
	SpecsPath       string `json:"specs_path" yaml:"specs_path"` // JSON file of domain.ArtifactSpec entries
}

// OutputConfig holds the executor's per-job output collection timings.
type OutputConfig struct {
	TimeoutSeconds      float64 `json:"output_timeout_seconds" yaml:"output_timeout_seconds"` // default 180
	PollSeconds         float64 `json:"output_poll_seconds" yaml:"output_poll_seconds"`        // default 1.5
	ArtifactGraceSecond float64 `json:"artifact_grace_seconds" yaml:"artifact_grace_seconds"`  // grace after prompt-done
	Workers             int     `json:"workers" yaml:"workers"`                                // concurrent job workers
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`           // Default: false
	Exporter    string  `json:"exporter" yaml:"exporter"`         // otlp-http (or otlp), stdout
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // localhost:4318
	ServiceName string  `json:"service_name" yaml:"service_name"` // comfyrt
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 1.0
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`     // Default: true
	Namespace string `json:"namespace" yaml:"namespace"` // comfyrt
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
}

// EngineOutputConfig controls the rolling capture of the engine
// subprocess's stdout/stderr.
type EngineOutputConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	StorageDir    string `json:"storage_dir" yaml:"storage_dir"`
	MaxLines      int    `json:"max_lines" yaml:"max_lines"`
	RetentionSecs int    `json:"retention_seconds" yaml:"retention_seconds"`
}

// ObservabilityConfig groups the ambient observability settings.
type ObservabilityConfig struct {
	Tracing      TracingConfig      `json:"tracing" yaml:"tracing"`
	Metrics      MetricsConfig      `json:"metrics" yaml:"metrics"`
	Logging      LoggingConfig      `json:"logging" yaml:"logging"`
	EngineOutput EngineOutputConfig `json:"engine_output" yaml:"engine_output"`
}

// Config is the central configuration struct embedding every component's
// settings.
type Config struct {
	Gateway       GatewayConfig       `json:"gateway" yaml:"gateway"`
	Engine        EngineConfig        `json:"engine" yaml:"engine"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Cache         CacheConfig         `json:"cache" yaml:"cache"`
	Artifacts     ArtifactsConfig     `json:"artifacts" yaml:"artifacts"`
	Output        OutputConfig        `json:"output" yaml:"output"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// DefaultConfig returns the baseline configuration used when no file or
// environment override is present.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ListenHost: "0.0.0.0",
			ListenPort: 8188,
			AppID:      "default",
		},
		Engine: EngineConfig{
			ComfyURL:            "http://127.0.0.1:8000",
			ContractPath:        "/etc/comfyrt/contract.json",
			WorkflowPath:        "/etc/comfyrt/workflow.json",
			ReadyTimeoutSeconds: 60,
			ReadyPollSeconds:    1,
		},
		Storage: StorageConfig{
			StateDBPath:  "/var/lib/comfyrt/state.db",
			ArtifactsDir: "/var/lib/comfyrt/artifacts",
		},
		Cache: CacheConfig{
			CacheRoot:     "/var/lib/comfyrt/cache",
			WatchPaths:    nil,
			MinFileSizeMB: 64,
		},
		Artifacts: ArtifactsConfig{
			CacheModelsRoot: "/var/lib/comfyrt/cache/models",
			CustomNodesRoot: "/var/lib/comfyrt/custom_nodes",
			EngineModelsDir: "/opt/comfyui/models",
		},
		Output: OutputConfig{
			TimeoutSeconds:      180,
			PollSeconds:         1.5,
			ArtifactGraceSecond: 5,
			Workers:             8,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "comfyrt",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "comfyrt",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
			EngineOutput: EngineOutputConfig{
				Enabled:       true,
				StorageDir:    "/var/lib/comfyrt/engine-output",
				MaxLines:      500,
				RetentionSecs: 3600,
			},
		},
	}
}

// LoadFromFile reads a JSON configuration file over DefaultConfig.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromYAMLFile reads a YAML configuration file over DefaultConfig.
func LoadFromYAMLFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv applies COMFYRT_*-prefixed environment variable overrides
// on top of cfg, in place.
func LoadFromEnv(cfg *Config) {
	// Gateway overrides
	if v := os.Getenv("COMFYRT_LISTEN_HOST"); v != "" {
		cfg.Gateway.ListenHost = v
	}
	if v := os.Getenv("COMFYRT_LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.ListenPort = n
		}
	}
	if v := os.Getenv("COMFYRT_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("COMFYRT_APP_ID"); v != "" {
		cfg.Gateway.AppID = v
	}

	// Engine overrides
	if v := os.Getenv("COMFYRT_COMFY_URL"); v != "" {
		cfg.Engine.ComfyURL = v
	}
	if v := os.Getenv("COMFYRT_CONTRACT_PATH"); v != "" {
		cfg.Engine.ContractPath = v
	}
	if v := os.Getenv("COMFYRT_WORKFLOW_PATH"); v != "" {
		cfg.Engine.WorkflowPath = v
	}
	if v := os.Getenv("COMFYRT_ENGINE_COMMAND"); v != "" {
		cfg.Engine.Command = strings.Fields(v)
	}
	if v := os.Getenv("COMFYRT_CONTRACT_INLINE"); v != "" {
		cfg.Engine.ContractInline = v
	}
	if v := os.Getenv("COMFYRT_WORKFLOW_INLINE"); v != "" {
		cfg.Engine.WorkflowInline = v
	}
	if v := os.Getenv("COMFYRT_ENGINE_READY_TIMEOUT_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.ReadyTimeoutSeconds = f
		}
	}
	if v := os.Getenv("COMFYRT_ENGINE_READY_POLL_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.ReadyPollSeconds = f
		}
	}

	// Storage overrides
	if v := os.Getenv("COMFYRT_STATE_DB_PATH"); v != "" {
		cfg.Storage.StateDBPath = v
	}
	if v := os.Getenv("COMFYRT_ARTIFACTS_DIR"); v != "" {
		cfg.Storage.ArtifactsDir = v
	}

	// Cache overrides
	if v := os.Getenv("COMFYRT_CACHE_ROOT"); v != "" {
		cfg.Cache.CacheRoot = v
	}
	if v := os.Getenv("COMFYRT_WATCH_PATHS"); v != "" {
		cfg.Cache.WatchPaths = strings.Split(v, ",")
	}
	if v := os.Getenv("COMFYRT_MIN_FILE_SIZE_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.MinFileSizeMB = n
		}
	}

	// Artifacts overrides
	if v := os.Getenv("COMFYRT_CACHE_MODELS_ROOT"); v != "" {
		cfg.Artifacts.CacheModelsRoot = v
	}
	if v := os.Getenv("COMFYRT_CUSTOM_NODES_ROOT"); v != "" {
		cfg.Artifacts.CustomNodesRoot = v
	}
	if v := os.Getenv("COMFYRT_ENGINE_MODELS_DIR"); v != "" {
		cfg.Artifacts.EngineModelsDir = v
	}
	if v := os.Getenv("COMFYRT_ARTIFACT_SPECS_PATH"); v != "" {
		cfg.Artifacts.SpecsPath = v
	}

	// Output collection overrides
	if v := os.Getenv("COMFYRT_OUTPUT_TIMEOUT_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Output.TimeoutSeconds = f
		}
	}
	if v := os.Getenv("COMFYRT_OUTPUT_POLL_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Output.PollSeconds = f
		}
	}
	if v := os.Getenv("COMFYRT_ARTIFACT_GRACE_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Output.ArtifactGraceSecond = f
		}
	}
	if v := os.Getenv("COMFYRT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Output.Workers = n
		}
	}

	// Observability overrides
	if v := os.Getenv("COMFYRT_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("COMFYRT_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("COMFYRT_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("COMFYRT_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("COMFYRT_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("COMFYRT_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}
	if v := os.Getenv("COMFYRT_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("COMFYRT_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("COMFYRT_ENGINE_OUTPUT_ENABLED"); v != "" {
		cfg.Observability.EngineOutput.Enabled = parseBool(v)
	}
	if v := os.Getenv("COMFYRT_ENGINE_OUTPUT_STORAGE_DIR"); v != "" {
		cfg.Observability.EngineOutput.StorageDir = v
	}
	if v := os.Getenv("COMFYRT_ENGINE_OUTPUT_MAX_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Observability.EngineOutput.MaxLines = n
		}
	}
	if v := os.Getenv("COMFYRT_ENGINE_OUTPUT_RETENTION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Observability.EngineOutput.RetentionSecs = n
		}
	}
}

// OutputTimeout returns Output.TimeoutSeconds as a time.Duration.
func (c *Config) OutputTimeout() time.Duration {
	return time.Duration(c.Output.TimeoutSeconds * float64(time.Second))
}

// OutputPollInterval returns Output.PollSeconds as a time.Duration.
func (c *Config) OutputPollInterval() time.Duration {
	return time.Duration(c.Output.PollSeconds * float64(time.Second))
}

// ArtifactGracePeriod returns Output.ArtifactGraceSecond as a time.Duration.
func (c *Config) ArtifactGracePeriod() time.Duration {
	return time.Duration(c.Output.ArtifactGraceSecond * float64(time.Second))
}

// EngineReadyTimeout returns Engine.ReadyTimeoutSeconds as a time.Duration.
func (c *Config) EngineReadyTimeout() time.Duration {
	return time.Duration(c.Engine.ReadyTimeoutSeconds * float64(time.Second))
}

// EngineReadyPollInterval returns Engine.ReadyPollSeconds as a time.Duration.
func (c *Config) EngineReadyPollInterval() time.Duration {
	return time.Duration(c.Engine.ReadyPollSeconds * float64(time.Second))
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
