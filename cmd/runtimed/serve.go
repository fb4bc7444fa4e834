package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/comfyendpoints/runtime/internal/config"
	"github.com/comfyendpoints/runtime/internal/logging"
	"github.com/comfyendpoints/runtime/internal/observability"
	"github.com/comfyendpoints/runtime/internal/supervisor"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		listenHost string
		listenPort int
		apiKey     string
		comfyURL   string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway and graph engine as one supervised process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("host") {
				cfg.Gateway.ListenHost = listenHost
			}
			if cmd.Flags().Changed("port") {
				cfg.Gateway.ListenPort = listenPort
			}
			if cmd.Flags().Changed("api-key") {
				cfg.Gateway.APIKey = apiKey
			}
			if cmd.Flags().Changed("comfy-url") {
				cfg.Engine.ComfyURL = comfyURL
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Observability.Logging.Level = logLevel
			}

			logging.SetLevelFromString(cfg.Observability.Logging.Level)
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			ctx := context.Background()
			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Observability.EngineOutput.Enabled {
				if err := logging.InitEngineOutputStore(
					cfg.Observability.EngineOutput.StorageDir,
					cfg.Observability.EngineOutput.MaxLines,
					cfg.Observability.EngineOutput.RetentionSecs,
				); err != nil {
					logging.Op().Warn("failed to init engine output capture", "error", err)
				}
			}

			return supervisor.Run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&listenHost, "host", "", "gateway listen host")
	cmd.Flags().IntVar(&listenPort, "port", 0, "gateway listen port")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key required on every non-public route")
	cmd.Flags().StringVar(&comfyURL, "comfy-url", "", "graph engine base URL")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

// loadConfig resolves configFile (set on the root command) over
// config.DefaultConfig, choosing the YAML or JSON loader by extension.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.DefaultConfig(), nil
	}
	if strings.HasSuffix(configFile, ".yaml") || strings.HasSuffix(configFile, ".yml") {
		return config.LoadFromYAMLFile(configFile)
	}
	return config.LoadFromFile(configFile)
}
