package cli

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koios/iconforge/pkg/models"
)

func writeTestImage(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 120, B: 240, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	path := filepath.Join(dir, "logo.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}
	return path
}

func TestGenerateCmd(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir)
	outDir := filepath.Join(dir, "dist")

	cmd := NewGenerateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{src, "--platforms", "chrome,vscode", "--out", outDir, "--workers", "2"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(outDir, "app-icons-chrome-vscode-*.zip"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one archive, got %v (%v)", matches, err)
	}

	zr, err := zip.OpenReader(matches[0])
	if err != nil {
		t.Fatalf("archive unreadable: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 6 {
		t.Errorf("archive has %d entries, want 6", len(zr.File))
	}

	if !strings.Contains(out.String(), "Wrote 6 icons") {
		t.Errorf("unexpected output %q", out.String())
	}
	if !strings.Contains(out.String(), "Your image is 40x40") {
		t.Errorf("missing resolution warning in %q", out.String())
	}
}

func TestGenerateCmd_UnknownPlatform(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir)

	cmd := NewGenerateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{src, "-p", "palm", "-o", dir})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "Invalid platform IDs: palm") {
		t.Fatalf("expected unknown platform error, got %v", err)
	}
}

func TestGenerateCmd_SourceTooLarge(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir)

	cmd := NewGenerateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{src, "-p", "chrome", "-o", dir, "--max-pixels", "1000"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "pixel limit") {
		t.Fatalf("expected pixel limit error, got %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.zip"))
	if len(matches) != 0 {
		t.Errorf("no archive should be written, found %v", matches)
	}
}

func TestPlatformsCmd(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		cmd := NewPlatformsCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("platforms failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		if len(lines) != 12 {
			t.Fatalf("expected header plus 11 rows, got %d lines", len(lines))
		}
		if !strings.Contains(out.String(), "favicon.ico") || !strings.Contains(out.String(), "manifest.json") {
			t.Errorf("extras column missing: %s", out.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		cmd := NewPlatformsCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--json"})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("platforms failed: %v", err)
		}

		var summaries []models.PlatformSummary
		if err := json.Unmarshal(out.Bytes(), &summaries); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(summaries) != 11 || summaries[0].ID != "ios" {
			t.Errorf("unexpected listing %+v", summaries)
		}
	})
}
