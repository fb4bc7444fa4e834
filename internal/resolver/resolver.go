// Package resolver reconciles a workflow's model and custom-node
// dependencies against an on-disk cache before the gateway is exposed,
// via a download-and-verify pipeline.
//
// # Contract
//
// Run takes the preflight prompt payload and the declared ArtifactSpecs and
// either returns nil (every requirement is satisfied on disk) or a
// *FailureError carrying the exact unmet dependency. A non-nil error is a
// first-class terminal state, not a crash: the Supervisor serves it
// verbatim from a degraded endpoint instead of starting the gateway.
//
// # Ordering
//
// Steps run in a fixed order: symlinks before downloads (downloads target
// the final cache path), custom nodes before models (a node's own
// directory may carry its own model catalog).
package resolver

import (
	"context"
	"fmt"

	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/logging"
	"github.com/comfyendpoints/runtime/internal/metrics"
)

// Config points the resolver at its on-disk layout and declared specs.
type Config struct {
	CacheModelsRoot string
	CustomNodesRoot string
	EngineModelsDir string // the engine's expected models directory; becomes a symlink into CacheModelsRoot
	Specs           []domain.ArtifactSpec
	Metrics         *metrics.Registry
}

// UnresolvedModel is one graph model reference that no declared
// ArtifactSpec could satisfy, identifying enough of the requirement for a
// monitor to key on: which node asked for it, under which input, and for
// which filename.
type UnresolvedModel struct {
	Reason    string `json:"reason"`
	ClassType string `json:"class_type,omitempty"`
	InputName string `json:"input_name,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

// FailureDetails carries stage-specific structured detail on a
// FailureError. Only the field relevant to the failing stage is
// populated; Paths is the generic fallback for stages whose unmet
// dependency is identified by a filesystem path or source URL rather
// than a graph reference.
type FailureDetails struct {
	UnresolvedModels []UnresolvedModel `json:"unresolved_models,omitempty"`
	Paths            []string          `json:"paths,omitempty"`
}

// FailureError is the structured payload returned when a
// dependency cannot be reconciled. It is not a Go error in the idiomatic
// sense of wrapping a cause chain; it IS the wire contract.
type FailureError struct {
	Status  string          `json:"status"`
	Stage   string          `json:"stage"`
	Message string          `json:"message"`
	Details *FailureDetails `json:"details,omitempty"`
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func fail(stage, message string, paths ...string) *FailureError {
	f := &FailureError{Status: "artifact_resolver_failed", Stage: stage, Message: message}
	if len(paths) > 0 {
		f.Details = &FailureDetails{Paths: paths}
	}
	return f
}

func failUnresolvedModels(stage, message string, unresolved ...UnresolvedModel) *FailureError {
	return &FailureError{
		Status:  "artifact_resolver_failed",
		Stage:   stage,
		Message: message,
		Details: &FailureDetails{UnresolvedModels: unresolved},
	}
}

// Resolver runs the five-step pre-start reconciliation.
type Resolver struct {
	cfg Config
}

// New constructs a Resolver.
func New(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Run executes the full reconciliation against preflightPrompt (the
// Mapper's preflight-payload graph, node_id -> node). Returns a
// *FailureError on any unresolved entry.
func (r *Resolver) Run(ctx context.Context, preflightPrompt map[string]any) *FailureError {
	log := logging.Op()

	if err := r.reconcileSymlinks(); err != nil {
		return fail("symlink_reconciliation", err.Error())
	}

	requirements := scanRequirements(preflightPrompt)
	log.Info("resolver scanned graph requirements", "count", len(requirements))

	customNodeSpecs := specsOf(r.cfg.Specs, domain.ArtifactCustomNode)
	if failure := r.resolveCustomNodes(ctx, customNodeSpecs); failure != nil {
		return failure
	}

	modelSpecs := specsOf(r.cfg.Specs, domain.ArtifactModel)
	if failure := r.resolveModels(ctx, requirements, modelSpecs); failure != nil {
		return failure
	}

	if failure := r.verify(modelSpecs); failure != nil {
		return failure
	}

	log.Info("resolver reconciliation complete")
	return nil
}

func specsOf(specs []domain.ArtifactSpec, kind domain.ArtifactKind) []domain.ArtifactSpec {
	var out []domain.ArtifactSpec
	for _, s := range specs {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
