package resolver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/logging"
)

// resolveCustomNodes runs the custom-node resolution step: for every declared
// custom_node ArtifactSpec, ensure its clone directory exists under
// CustomNodesRoot, cloning if absent, then installing its Python
// requirements if present.
func (r *Resolver) resolveCustomNodes(ctx context.Context, specs []domain.ArtifactSpec) *FailureError {
	for _, spec := range specs {
		dir := cloneDirFor(r.cfg.CustomNodesRoot, spec.SourceURL)

		if _, err := os.Stat(dir); err == nil {
			continue
		}

		if err := r.cloneCustomNode(ctx, spec, dir); err != nil {
			r.recordDownload("custom_node", "failed", 0)
			return fail("custom_node_clone", err.Error(), spec.SourceURL)
		}
		r.recordDownload("custom_node", "ok", 0)

		if err := installRequirements(ctx, dir); err != nil {
			logging.Op().Error("custom node requirements install failed", "dir", dir, "error", err)
		}

		if _, err := os.Stat(dir); err != nil {
			return fail("custom_node_clone", "clone directory missing after clone", dir)
		}
	}
	return nil
}

func (r *Resolver) cloneCustomNode(ctx context.Context, spec domain.ArtifactSpec, dir string) error {
	opts := &git.CloneOptions{URL: spec.SourceURL, Depth: 1}
	if spec.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(spec.Ref)
	}
	logging.Op().Info("cloning custom node", "url", spec.SourceURL, "ref", spec.Ref, "dir", dir)
	_, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("clone %s: %w", spec.SourceURL, err)
	}
	return nil
}

func installRequirements(ctx context.Context, dir string) error {
	reqFile := filepath.Join(dir, "requirements.txt")
	if _, err := os.Stat(reqFile); err != nil {
		return nil
	}
	cmd := exec.CommandContext(ctx, "pip", "install", "-r", reqFile)
	cmd.Dir = dir
	return cmd.Run()
}

func cloneDirFor(root, sourceURL string) string {
	return filepath.Join(root, repoNameFromURL(sourceURL))
}

func repoNameFromURL(url string) string {
	name := filepath.Base(url)
	for _, suffix := range []string{".git"} {
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			return name[:len(name)-len(suffix)]
		}
	}
	return name
}

func (r *Resolver) recordDownload(kind, outcome string, bytes int64) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordResolverDownload(kind, outcome, bytes)
	}
}
