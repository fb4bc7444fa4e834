package supervisor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/comfyendpoints/runtime/internal/config"
)

// materializeFiles writes Engine.ContractInline/WorkflowInline to
// ContractPath/WorkflowPath when those files do not already exist, so a
// deployment can pass the contract and workflow as configuration-embedded
// JSON blobs instead of pre-placed files.
func materializeFiles(cfg *config.Config) error {
	if cfg.Engine.ContractInline != "" {
		if err := writeIfMissing(cfg.Engine.ContractPath, cfg.Engine.ContractInline); err != nil {
			return fmt.Errorf("materialize contract: %w", err)
		}
	}
	if cfg.Engine.WorkflowInline != "" {
		if err := writeIfMissing(cfg.Engine.WorkflowPath, cfg.Engine.WorkflowInline); err != nil {
			return fmt.Errorf("materialize workflow: %w", err)
		}
	}
	return nil
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
