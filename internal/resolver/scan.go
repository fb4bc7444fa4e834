package resolver

import "github.com/comfyendpoints/runtime/internal/domain"

// requirement is one model reference a graph node names: which subdirectory
// it belongs in, and the filename (possibly with a subpath prefix) to
// locate on disk or download.
type requirement struct {
	ClassType string
	InputName string
	Subdir    domain.ModelSubdir
	Value     string
}

// Candidates returns the full-string and basename forms of Value, mirroring
// domain.ArtifactSpec.MatchCandidates so the two sides compare like for
// like.
func (r requirement) Candidates() []string {
	spec := domain.ArtifactSpec{Match: r.Value}
	return spec.MatchCandidates()
}

// overrides is the small table of (class_type, input_name) pairs consulted
// when an input name is not in the generic modelReferenceSlots table in
// internal/domain. Its current entries use input names that the generic
// table already maps to the same subdirectories, so the generic table
// answers for them first.
var overrides = map[[2]string]domain.ModelSubdir{
	{"CheckpointLoader", "ckpt_name"}:         domain.SubdirCheckpoints,
	{"UNETLoader", "unet_name"}:               domain.SubdirDiffusionModels,
	{"ControlNetLoaderAdvanced", "control_net_name"}: domain.SubdirControlNet,
}

// scanRequirements walks every node in a parsed prompt payload
// (node_id -> {class_type, inputs}) and collects model-reference
// requirements by the fixed slot table, overrides table, or both.
func scanRequirements(prompt map[string]any) []requirement {
	var out []requirement
	for _, raw := range prompt {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		classType, _ := node["class_type"].(string)
		inputs, _ := node["inputs"].(map[string]any)
		for name, rawValue := range inputs {
			value, ok := rawValue.(string)
			if !ok || value == "" {
				continue
			}
			subdir, known := domain.ModelSlotSubdir(name)
			if !known {
				subdir, known = overrides[[2]string{classType, name}]
			}
			if !known {
				continue
			}
			out = append(out, requirement{ClassType: classType, InputName: name, Subdir: subdir, Value: value})
		}
	}
	return out
}
