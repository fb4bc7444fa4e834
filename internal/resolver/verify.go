package resolver

import (
	"os"
	"path/filepath"

	"github.com/comfyendpoints/runtime/internal/domain"
)

// verify re-checks every declared model artifact's expected on-disk path
// exists.
func (r *Resolver) verify(modelSpecs []domain.ArtifactSpec) *FailureError {
	var missing []string
	for _, spec := range modelSpecs {
		path := filepath.Join(r.cfg.CacheModelsRoot, string(spec.TargetSubdir), spec.TargetPath)
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return fail("verify", "declared artifact missing after resolution", missing...)
	}
	return nil
}
