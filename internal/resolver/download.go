package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-getter"
	"golang.org/x/sync/errgroup"

	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/logging"
)

// resolveModels runs the model-resolution step: for every scanned graph
// requirement, find a declared model ArtifactSpec whose match candidates
// intersect the requirement's candidates, then download it to
// CacheModelsRoot/target_subdir/target_path if not already present. Pending
// downloads are independent of each other, so they fan out concurrently;
// the first unresolved requirement or failed download wins and cancels the
// rest.
func (r *Resolver) resolveModels(ctx context.Context, requirements []requirement, specs []domain.ArtifactSpec) *FailureError {
	seen := make(map[string]bool)
	type pending struct {
		spec *domain.ArtifactSpec
		dest string
	}
	var toDownload []pending

	for _, req := range requirements {
		key := string(req.Subdir) + "/" + req.Value
		if seen[key] {
			continue
		}
		seen[key] = true

		spec := findMatchingSpec(req, specs)
		if spec == nil {
			return failUnresolvedModels("model_resolution", "required model not declared in artifact specs", UnresolvedModel{
				Reason:    "required_model_not_declared_in_app_artifacts",
				ClassType: req.ClassType,
				InputName: req.InputName,
				Filename:  req.Value,
			})
		}

		dest := filepath.Join(r.cfg.CacheModelsRoot, string(spec.TargetSubdir), spec.TargetPath)
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		toDownload = append(toDownload, pending{spec: spec, dest: dest})
	}

	if len(toDownload) == 0 {
		return nil
	}

	var mu sync.Mutex
	var firstFailure *FailureError
	group, gctx := errgroup.WithContext(ctx)

	for _, p := range toDownload {
		p := p
		group.Go(func() error {
			if err := r.downloadModel(gctx, *p.spec, p.dest); err != nil {
				r.recordDownload("model", "failed", 0)
				mu.Lock()
				if firstFailure == nil {
					firstFailure = fail("model_download", err.Error(), p.spec.SourceURL)
				}
				mu.Unlock()
				return err
			}
			info, _ := os.Stat(p.dest)
			var size int64
			if info != nil {
				size = info.Size()
			}
			r.recordDownload("model", "ok", size)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return firstFailure
	}
	return nil
}

// findMatchingSpec returns the first spec whose MatchCandidates intersect
// req's candidates.
func findMatchingSpec(req requirement, specs []domain.ArtifactSpec) *domain.ArtifactSpec {
	reqCandidates := req.Candidates()
	for i := range specs {
		spec := specs[i]
		for _, reqCand := range reqCandidates {
			for _, specCand := range spec.MatchCandidates() {
				if reqCand == specCand {
					return &specs[i]
				}
			}
		}
	}
	return nil
}

func (r *Resolver) downloadModel(ctx context.Context, spec domain.ArtifactSpec, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(dest), err)
	}

	logging.Op().Info("downloading model artifact", "source", spec.SourceURL, "dest", dest)
	client := &getter.Client{
		Ctx:  ctx,
		Src:  spec.SourceURL,
		Dst:  dest,
		Mode: getter.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return fmt.Errorf("download %s: %w", spec.SourceURL, err)
	}
	return nil
}
