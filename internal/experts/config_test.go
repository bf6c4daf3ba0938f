package experts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experts.yaml")
	content := `
alpha: 0.3
experts:
  - id: rockwool
    manufacturer: ROCKWOOL
    prompt_template: rockwool-hu
    backend_weights:
      lattice: 1.0
      stream: 0.5
    initial_weight: 0.8
  - id: default
    initial_weight: 0.5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfgs, alpha, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if alpha != 0.3 {
		t.Errorf("alpha = %v, want 0.3", alpha)
	}
	if len(cfgs) != 2 {
		t.Fatalf("len(experts) = %d, want 2", len(cfgs))
	}
	if cfgs[0].ID != "rockwool" || cfgs[0].Manufacturer != "ROCKWOOL" {
		t.Errorf("first expert = %+v, want rockwool", cfgs[0])
	}
	if w := cfgs[0].BackendWeights["stream"]; w != 0.5 {
		t.Errorf("stream weight = %v, want 0.5", w)
	}
}

func TestLoadFileRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experts.yaml")
	content := "experts:\n  - id: x\n  - id: x\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() error = nil, want duplicate id rejection")
	}
}
