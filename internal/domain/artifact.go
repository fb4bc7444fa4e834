package domain

// ArtifactKind distinguishes the two deploy-time dependency shapes the
// resolver reconciles before the engine comes online.
type ArtifactKind string

const (
	ArtifactModel      ArtifactKind = "model"
	ArtifactCustomNode ArtifactKind = "custom_node"
)

// ModelSubdir is one of the fixed model-storage subdirectories the resolver
// and the engine both agree on.
type ModelSubdir string

const (
	SubdirCheckpoints     ModelSubdir = "checkpoints"
	SubdirDiffusionModels ModelSubdir = "diffusion_models"
	SubdirTextEncoders    ModelSubdir = "text_encoders"
	SubdirVAE             ModelSubdir = "vae"
	SubdirLoras           ModelSubdir = "loras"
	SubdirControlNet      ModelSubdir = "controlnet"
)

// ValidModelSubdirs is the fixed set ArtifactSpec.TargetSubdir must belong to.
var ValidModelSubdirs = map[ModelSubdir]bool{
	SubdirCheckpoints:     true,
	SubdirDiffusionModels: true,
	SubdirTextEncoders:    true,
	SubdirVAE:             true,
	SubdirLoras:           true,
	SubdirControlNet:      true,
}

// ArtifactSpec is one deploy-time declared dependency: either a model file
// (matched against graph requirements by filename) or a custom node
// (cloned from a git repository).
type ArtifactSpec struct {
	Kind ArtifactKind `json:"kind"`

	// Model fields.
	Match        string      `json:"match,omitempty"`
	SourceURL    string      `json:"source_url,omitempty"`
	TargetSubdir ModelSubdir `json:"target_subdir,omitempty"`
	TargetPath   string      `json:"target_path,omitempty"`

	// Custom node fields.
	Ref      string   `json:"ref,omitempty"`
	Provides []string `json:"provides,omitempty"`
}

// modelReferenceSlots is the fixed table of (input_name -> target subdir)
// the resolver's graph scan recognizes without an override entry.
var modelReferenceSlots = map[string]ModelSubdir{
	"ckpt_name":       SubdirCheckpoints,
	"unet_name":       SubdirDiffusionModels,
	"clip_name":       SubdirTextEncoders,
	"clip_name1":      SubdirTextEncoders,
	"clip_name2":      SubdirTextEncoders,
	"vae_name":        SubdirVAE,
	"lora_name":       SubdirLoras,
	"control_net_name": SubdirControlNet,
}

// ModelSlotSubdir returns the target subdirectory for a known model-reference
// input slot name, and whether inputName is recognized.
func ModelSlotSubdir(inputName string) (ModelSubdir, bool) {
	subdir, ok := modelReferenceSlots[inputName]
	return subdir, ok
}

// MatchCandidates returns the full-string and basename candidates a model
// ArtifactSpec offers for requirement matching, drawn from both Match and
// TargetPath.
func (a *ArtifactSpec) MatchCandidates() []string {
	candidates := make([]string, 0, 4)
	seen := make(map[string]bool, 4)
	add := func(s string) {
		if s == "" {
			return
		}
		for _, c := range []string{s, basename(s)} {
			if !seen[c] {
				seen[c] = true
				candidates = append(candidates, c)
			}
		}
	}
	add(a.Match)
	add(a.TargetPath)
	return candidates
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
