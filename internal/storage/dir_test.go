package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alphauslabs/buckshot/internal/apperr"
)

func TestDirGetAndDelete(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "videos"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "videos", "a.mp4"), []byte("bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDir(root)
	ctx := context.Background()

	r, err := d.Get(ctx, "videos/a.mp4")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	b, _ := io.ReadAll(r)
	r.Close()
	if string(b) != "bytes" {
		t.Errorf("content = %q", b)
	}

	if err := d.Delete(ctx, "videos/a.mp4"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := d.Delete(ctx, "videos/a.mp4"); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}

	_, err = d.Get(ctx, "videos/a.mp4")
	if !apperr.Is(err, apperr.CodePermanentUpload) || apperr.ReasonOf(err) != apperr.ReasonSourceMissing {
		t.Errorf("Get missing = %v, want permanent source_missing", err)
	}
}

func TestDirRejectsEscapingKeys(t *testing.T) {
	d := NewDir(t.TempDir())
	if _, err := d.Get(context.Background(), "../etc/passwd"); !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("Get = %v, want validation error", err)
	}
}
