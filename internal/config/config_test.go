package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[ownership]
min_confidence = 0.7

[locks]
acquire = ["my_lock"]
release = ["my_unlock"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Ownership.MinConfidence != 0.7 {
		t.Errorf("min_confidence = %g", cfg.Ownership.MinConfidence)
	}
	if cfg.Ownership.MaxPaths != def.Ownership.MaxPaths || cfg.Codegen.Indent != 4 || cfg.Driver.Jobs != def.Driver.Jobs {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if !cfg.Driver.Cache {
		t.Errorf("cache should default on")
	}
	lc := cfg.LocksConfig()
	if !slices.Contains(lc.Acquire, "my_lock") || !slices.Contains(lc.Acquire, "pthread_mutex_lock") {
		t.Errorf("acquire = %v", lc.Acquire)
	}
	if !slices.Contains(lc.Release, "my_unlock") {
		t.Errorf("release = %v", lc.Release)
	}
	if cfg.Path != path {
		t.Errorf("path = %q", cfg.Path)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[ownership\n", "failed to parse TOML"},
		{"unknown key", "[codegen]\ncolour = true\n", "unknown keys: codegen.colour"},
		{"confidence", "[ownership]\nmin_confidence = 1.5\n", "min_confidence"},
		{"indent", "[codegen]\nindent = 0\n", "indent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestCheckVersion(t *testing.T) {
	if err := CheckVersion("", "0.4.0"); err != nil {
		t.Errorf("empty constraint: %v", err)
	}
	if err := CheckVersion(">= 0.3", "0.4.0"); err != nil {
		t.Errorf(">= 0.3: %v", err)
	}
	if err := CheckVersion(">= 1.0", "0.4.0"); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf(">= 1.0: %v, want ErrVersionMismatch", err)
	}
	if err := CheckVersion("not a constraint", "0.4.0"); err == nil || errors.Is(err, ErrVersionMismatch) {
		t.Errorf("bad constraint: %v", err)
	}
}

func TestMinVersionInFile(t *testing.T) {
	_, err := Load(writeConfig(t, t.TempDir(), "[decant]\nmin_version = \">= 99.0\"\n"))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("err = %v, want ErrVersionMismatch", err)
	}
	if got := ErrorCode(err).ID(); got != "CFG7002" {
		t.Errorf("ErrorCode = %s, want CFG7002", got)
	}
	if got := ErrorCode(errors.New("bad")).ID(); got != "CFG7001" {
		t.Errorf("ErrorCode = %s, want CFG7001", got)
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[codegen]\nindent = 2\n")
	nested := filepath.Join(root, "src", "lib")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, err := Discover(nested)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Codegen.Indent != 2 || cfg.IndentString() != "  " {
		t.Errorf("indent = %d", cfg.Codegen.Indent)
	}
}

func TestFingerprint(t *testing.T) {
	a, b := Default(), Default()
	b.Driver.Jobs = a.Driver.Jobs + 3
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("jobs changed the fingerprint")
	}
	b.Ownership.MinConfidence = 0.9
	if a.Fingerprint() == b.Fingerprint() {
		t.Errorf("min_confidence did not change the fingerprint")
	}
}
