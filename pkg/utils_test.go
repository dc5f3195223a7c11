package pkg

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "css")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "assets.toml"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot: %v", err)
	}
	if got != root {
		t.Errorf("got %s, want %s", got, root)
	}
}

func TestPrintTask(t *testing.T) {
	var buf bytes.Buffer
	Output = &buf
	defer func() { Output = os.Stdout }()

	PrintTask("Running build")
	PrintError("styles failed")

	out := buf.String()
	if !strings.Contains(out, "==>") || !strings.Contains(out, "Running build") || !strings.Contains(out, "styles failed") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "[bold]") {
		t.Errorf("colour tags were not replaced: %q", out)
	}
}
