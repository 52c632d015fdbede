package gphoto

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	content := `iso:
  - custom iso key
aperture:
  - f-number
  - lens aperture
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	aliases, err := LoadAliases(path)
	if err != nil {
		t.Fatalf("LoadAliases: %v", err)
	}
	if got := aliases["iso"]; len(got) != 1 || got[0] != "custom iso key" {
		t.Errorf("iso aliases = %v", got)
	}
	if got := aliases["aperture"]; len(got) != 2 || got[1] != "lens aperture" {
		t.Errorf("aperture aliases = %v", got)
	}
}

func TestLoadAliasesMissingFile(t *testing.T) {
	if _, err := LoadAliases(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadAliasesBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("iso: {nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAliases(path); err == nil {
		t.Error("expected parse error")
	}
}
