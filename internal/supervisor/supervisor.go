// Package supervisor is the process entrypoint: materialize the contract
// and workflow files, reconcile the optional file cache, run the artifact
// resolver, launch the graph engine subprocess, submit a preflight graph
// to force it to resolve every model reference, then bring up the
// gateway. A resolver failure is served from a degraded endpoint instead
// of crashing the process; any other failure before the gateway starts
// ends Run with an error.
//
// Uses signal-channel shutdown, explicit component construction order,
// and a "whichever child exits first wins" exit sequencing across two
// children: an engine subprocess and a gateway.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comfyendpoints/runtime/internal/cachemgr"
	"github.com/comfyendpoints/runtime/internal/config"
	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/engineclient"
	"github.com/comfyendpoints/runtime/internal/executor"
	"github.com/comfyendpoints/runtime/internal/filestore"
	"github.com/comfyendpoints/runtime/internal/gateway"
	"github.com/comfyendpoints/runtime/internal/logging"
	"github.com/comfyendpoints/runtime/internal/mapper"
	"github.com/comfyendpoints/runtime/internal/metrics"
	"github.com/comfyendpoints/runtime/internal/resolver"
)

// Run drives the full startup sequence and blocks until the process should
// exit, returning the error (if any) that caused the exit. A non-nil error
// with ExitCode() set to a nonzero value should become the process's exit
// status; the caller (cmd/runtimed) is responsible for os.Exit.
func Run(ctx context.Context, cfg *config.Config) error {
	log := logging.Op()

	if err := materializeFiles(cfg); err != nil {
		return fmt.Errorf("supervisor: materialize files: %w", err)
	}

	contract, workflow, err := loadGraphFiles(cfg)
	if err != nil {
		return fmt.Errorf("supervisor: load graph files: %w", err)
	}

	if cfg.Cache.CacheRoot != "" && len(cfg.Cache.WatchPaths) > 0 {
		mgr, err := cachemgr.New(cachemgr.Config{
			CacheRoot:     cfg.Cache.CacheRoot,
			WatchPaths:    cfg.Cache.WatchPaths,
			MinFileSizeMB: cfg.Cache.MinFileSizeMB,
		})
		if err != nil {
			return fmt.Errorf("supervisor: init cache manager: %w", err)
		}
		reconciled, err := mgr.Reconcile()
		if err != nil {
			return fmt.Errorf("supervisor: reconcile cache: %w", err)
		}
		log.Info("cache reconciliation complete", "managed_files", len(reconciled))
	}

	var metricsReg *metrics.Registry
	if cfg.Observability.Metrics.Enabled {
		metricsReg = metrics.NewRegistry(cfg.Observability.Metrics.Namespace)
	}

	preflightPayload, err := mapper.BuildPreflightPayload(workflow, contract, mapper.RuntimeCoordinates{JobID: "preflight"})
	if err != nil {
		return fmt.Errorf("supervisor: build preflight payload: %w", err)
	}
	preflightPrompt, _ := preflightPayload["prompt"].(map[string]any)

	specs, err := loadArtifactSpecs(cfg.Artifacts.SpecsPath)
	if err != nil {
		return fmt.Errorf("supervisor: load artifact specs: %w", err)
	}

	if failure := resolver.New(resolver.Config{
		CacheModelsRoot: cfg.Artifacts.CacheModelsRoot,
		CustomNodesRoot: cfg.Artifacts.CustomNodesRoot,
		EngineModelsDir: cfg.Artifacts.EngineModelsDir,
		Specs:           specs,
		Metrics:         metricsReg,
	}).Run(ctx, preflightPrompt); failure != nil {
		log.Error("artifact resolver failed, serving degraded endpoint", "stage", failure.Stage, "message", failure.Message)
		return serveDegraded(ctx, cfg, failure)
	}

	var engineProc *engineProcess
	if len(cfg.Engine.Command) > 0 {
		engineProc, err = startEngine(cfg)
		if err != nil {
			return fmt.Errorf("supervisor: start engine: %w", err)
		}
		defer engineProc.Stop()
	}

	client := engineclient.New(cfg.Engine.ComfyURL)
	if err := waitForEngineReady(ctx, client, cfg); err != nil {
		if engineProc != nil {
			engineProc.Stop()
		}
		return fmt.Errorf("supervisor: engine did not become ready: %w", err)
	}

	if _, err := client.Submit(ctx, preflightPrompt); err != nil {
		log.Error("preflight submission rejected by engine, aborting startup", "error", err)
		if engineProc != nil {
			engineProc.Stop()
		}
		return fmt.Errorf("supervisor: preflight submission failed: %w", err)
	}
	log.Info("preflight submission accepted, engine has resolved every model reference")

	store, err := filestore.Open(cfg.Storage.StateDBPath)
	if err != nil {
		return fmt.Errorf("supervisor: open file store: %w", err)
	}
	defer store.Close()

	exec := executor.New(store, client, contract, workflow, executor.Config{
		Workers:             cfg.Output.Workers,
		OutputTimeout:       cfg.OutputTimeout(),
		OutputPollInterval:  cfg.OutputPollInterval(),
		ArtifactGracePeriod: cfg.ArtifactGracePeriod(),
		StateDBPath:         cfg.Storage.StateDBPath,
		Metrics:             metricsReg,
	})
	exec.Start()
	defer exec.Stop()

	gw := gateway.New(gateway.Config{
		Store:          store,
		Exec:           exec,
		Engine:         client,
		Contract:       contract,
		APIKey:         cfg.Gateway.APIKey,
		AppID:          cfg.Gateway.AppID,
		Metrics:        metricsReg,
		TracingEnabled: cfg.Observability.Tracing.Enabled,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.ListenHost, cfg.Gateway.ListenPort)
	gwErrCh := make(chan error, 1)
	gwCtx, gwCancel := context.WithCancel(ctx)
	defer gwCancel()
	go func() { gwErrCh <- gw.Serve(gwCtx, addr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var engineExitCh <-chan struct{}
	if engineProc != nil {
		engineExitCh = engineProc.Exited()
	}

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
		gwCancel()
		<-gwErrCh
		return nil
	case err := <-gwErrCh:
		log.Error("gateway exited unexpectedly", "error", err)
		return err
	case <-engineExitCh:
		err := engineProc.WaitErr()
		log.Error("engine subprocess exited, shutting down gateway", "error", err)
		gwCancel()
		<-gwErrCh
		if err == nil {
			err = fmt.Errorf("supervisor: engine subprocess exited")
		}
		return err
	}
}

func loadGraphFiles(cfg *config.Config) (*domain.WorkflowContract, map[string]any, error) {
	contractBytes, err := os.ReadFile(cfg.Engine.ContractPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read contract: %w", err)
	}
	var contract domain.WorkflowContract
	if err := json.Unmarshal(contractBytes, &contract); err != nil {
		return nil, nil, fmt.Errorf("parse contract: %w", err)
	}
	if err := contract.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validate contract: %w", err)
	}

	workflowBytes, err := os.ReadFile(cfg.Engine.WorkflowPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read workflow: %w", err)
	}
	var workflow map[string]any
	if err := json.Unmarshal(workflowBytes, &workflow); err != nil {
		return nil, nil, fmt.Errorf("parse workflow: %w", err)
	}

	if err := mapper.ValidateOutputBindings(workflow, &contract); err != nil {
		return nil, nil, fmt.Errorf("validate contract against workflow: %w", err)
	}

	return &contract, workflow, nil
}

func loadArtifactSpecs(path string) ([]domain.ArtifactSpec, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact specs: %w", err)
	}
	var specs []domain.ArtifactSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse artifact specs: %w", err)
	}
	return specs, nil
}

func waitForEngineReady(ctx context.Context, client *engineclient.Client, cfg *config.Config) error {
	deadline := time.Now().Add(cfg.EngineReadyTimeout())
	ticker := time.NewTicker(cfg.EngineReadyPollInterval())
	defer ticker.Stop()

	for {
		readyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ready(readyCtx)
		cancel()
		if err == nil {
			return nil
		}
		logging.Op().Debug("engine readiness probe failed", "error", err)
		if time.Now().After(deadline) {
			return fmt.Errorf("engine not ready after %s: %w", cfg.EngineReadyTimeout(), err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// serveDegraded runs a minimal HTTP server serving failure verbatim on
// every route until a shutdown signal arrives: a resolver failure is a
// terminal deployment state, not a crash.
func serveDegraded(ctx context.Context, cfg *config.Config, failure *resolver.FailureError) error {
	addr := fmt.Sprintf("%s:%d", cfg.Gateway.ListenHost, cfg.Gateway.ListenPort)
	srv := &http.Server{Addr: addr, Handler: degradedHandler(failure)}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	}
}
