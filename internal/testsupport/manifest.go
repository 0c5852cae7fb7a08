package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteManifest writes manifest JSON under dir and returns the file path.
func WriteManifest(t testing.TB, dir, content string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}
