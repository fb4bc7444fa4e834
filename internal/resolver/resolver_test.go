package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/comfyendpoints/runtime/internal/domain"
)

func TestScanRequirements_FindsKnownSlots(t *testing.T) {
	prompt := map[string]any{
		"1": map[string]any{
			"class_type": "CheckpointLoaderSimple",
			"inputs":     map[string]any{"ckpt_name": "sd_xl_base.safetensors"},
		},
		"2": map[string]any{
			"class_type": "VAELoader",
			"inputs":     map[string]any{"vae_name": "vae-ft-mse.safetensors"},
		},
		"3": map[string]any{
			"class_type": "SomeOtherNode",
			"inputs":     map[string]any{"unrelated": "value"},
		},
	}

	reqs := scanRequirements(prompt)
	if len(reqs) != 2 {
		t.Fatalf("len(reqs) = %d, want 2", len(reqs))
	}

	found := map[string]domain.ModelSubdir{}
	for _, r := range reqs {
		found[r.Value] = r.Subdir
	}
	if found["sd_xl_base.safetensors"] != domain.SubdirCheckpoints {
		t.Errorf("checkpoint subdir = %v", found["sd_xl_base.safetensors"])
	}
	if found["vae-ft-mse.safetensors"] != domain.SubdirVAE {
		t.Errorf("vae subdir = %v", found["vae-ft-mse.safetensors"])
	}
}

func TestScanRequirements_OverrideTable(t *testing.T) {
	prompt := map[string]any{
		"1": map[string]any{
			"class_type": "UNETLoader",
			"inputs":     map[string]any{"unet_name": "flux1-dev.safetensors"},
		},
	}
	reqs := scanRequirements(prompt)
	if len(reqs) != 1 || reqs[0].Subdir != domain.SubdirDiffusionModels {
		t.Fatalf("reqs = %+v", reqs)
	}
}

func TestFindMatchingSpec_BasenameMatch(t *testing.T) {
	specs := []domain.ArtifactSpec{
		{Kind: domain.ArtifactModel, Match: "models/sd_xl_base.safetensors", TargetSubdir: domain.SubdirCheckpoints, TargetPath: "sd_xl_base.safetensors"},
	}
	req := requirement{Value: "sd_xl_base.safetensors", Subdir: domain.SubdirCheckpoints}
	spec := findMatchingSpec(req, specs)
	if spec == nil {
		t.Fatal("expected a match")
	}
}

func TestFindMatchingSpec_NoMatch(t *testing.T) {
	req := requirement{Value: "unknown.safetensors", Subdir: domain.SubdirCheckpoints}
	if findMatchingSpec(req, nil) != nil {
		t.Fatal("expected no match")
	}
}

func TestResolveModels_MissingSpecFails(t *testing.T) {
	r := New(Config{CacheModelsRoot: t.TempDir()})
	reqs := []requirement{{ClassType: "CheckpointLoaderSimple", InputName: "ckpt_name", Value: "missing.safetensors", Subdir: domain.SubdirCheckpoints}}
	failure := r.resolveModels(t.Context(), reqs, nil)
	if failure == nil || failure.Stage != "model_resolution" {
		t.Fatalf("failure = %+v", failure)
	}
	if failure.Details == nil || len(failure.Details.UnresolvedModels) != 1 {
		t.Fatalf("details = %+v, want one unresolved model", failure.Details)
	}
	got := failure.Details.UnresolvedModels[0]
	if got.Reason != "required_model_not_declared_in_app_artifacts" {
		t.Errorf("reason = %q", got.Reason)
	}
	if got.ClassType != "CheckpointLoaderSimple" || got.InputName != "ckpt_name" || got.Filename != "missing.safetensors" {
		t.Errorf("unresolved model = %+v", got)
	}
}

func TestResolveModels_AlreadyCachedSkipsDownload(t *testing.T) {
	root := t.TempDir()
	subdir := filepath.Join(root, "checkpoints")
	os.MkdirAll(subdir, 0o755)
	os.WriteFile(filepath.Join(subdir, "model.safetensors"), []byte("x"), 0o644)

	specs := []domain.ArtifactSpec{
		{Kind: domain.ArtifactModel, Match: "model.safetensors", TargetSubdir: domain.SubdirCheckpoints, TargetPath: "model.safetensors", SourceURL: "https://example.invalid/model.safetensors"},
	}
	reqs := []requirement{{Value: "model.safetensors", Subdir: domain.SubdirCheckpoints}}

	r := New(Config{CacheModelsRoot: root})
	if failure := r.resolveModels(t.Context(), reqs, specs); failure != nil {
		t.Fatalf("failure = %+v", failure)
	}
}

func TestVerify_MissingArtifactFails(t *testing.T) {
	r := New(Config{CacheModelsRoot: t.TempDir()})
	specs := []domain.ArtifactSpec{
		{TargetSubdir: domain.SubdirCheckpoints, TargetPath: "nope.safetensors"},
	}
	if failure := r.verify(specs); failure == nil || failure.Stage != "verify" {
		t.Fatalf("failure = %+v", failure)
	}
}

func TestVerify_PresentArtifactPasses(t *testing.T) {
	root := t.TempDir()
	subdir := filepath.Join(root, "checkpoints")
	os.MkdirAll(subdir, 0o755)
	os.WriteFile(filepath.Join(subdir, "present.safetensors"), []byte("x"), 0o644)

	r := New(Config{CacheModelsRoot: root})
	specs := []domain.ArtifactSpec{
		{TargetSubdir: domain.SubdirCheckpoints, TargetPath: "present.safetensors"},
	}
	if failure := r.verify(specs); failure != nil {
		t.Fatalf("failure = %+v", failure)
	}
}

func TestReconcileSymlinks_CreatesSymlinkWhenAbsent(t *testing.T) {
	engineRoot := filepath.Join(t.TempDir(), "engine-models")
	cacheRoot := t.TempDir()

	r := New(Config{CacheModelsRoot: cacheRoot, EngineModelsDir: engineRoot})
	if err := r.reconcileSymlinks(); err != nil {
		t.Fatalf("reconcileSymlinks() = %v", err)
	}

	for subdir := range domain.ValidModelSubdirs {
		link := filepath.Join(engineRoot, string(subdir))
		info, err := os.Lstat(link)
		if err != nil {
			t.Fatalf("lstat %s: %v", link, err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			t.Errorf("%s is not a symlink", link)
		}
	}
}

func TestReconcileSymlinks_MigratesExistingDirectory(t *testing.T) {
	engineRoot := filepath.Join(t.TempDir(), "engine-models")
	cacheRoot := t.TempDir()

	preexisting := filepath.Join(engineRoot, "checkpoints")
	os.MkdirAll(preexisting, 0o755)
	os.WriteFile(filepath.Join(preexisting, "existing.safetensors"), []byte("data"), 0o644)

	r := New(Config{CacheModelsRoot: cacheRoot, EngineModelsDir: engineRoot})
	if err := r.reconcileSymlinks(); err != nil {
		t.Fatalf("reconcileSymlinks() = %v", err)
	}

	migrated := filepath.Join(cacheRoot, "checkpoints", "existing.safetensors")
	if _, err := os.Stat(migrated); err != nil {
		t.Errorf("expected migrated file at %s: %v", migrated, err)
	}

	link := filepath.Join(engineRoot, "checkpoints")
	info, err := os.Lstat(link)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		t.Errorf("expected %s to be a symlink after migration", link)
	}
}

func TestRepoNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://github.com/org/repo.git": "repo",
		"https://github.com/org/repo":     "repo",
	}
	for in, want := range cases {
		if got := repoNameFromURL(in); got != want {
			t.Errorf("repoNameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}
