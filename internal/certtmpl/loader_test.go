package certtmpl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write template fixture: %v", err)
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "default.yaml", `
name: default
title: Certificate of Completion
body: "{{learner}} completed {{formation}}"
footer: "Issued {{date}} by {{trainer}}"
`)
	writeTemplate(t, dir, "minimal.yml", `
name: minimal
body: "{{learner}} - {{formation}}"
`)
	// Broken fixtures are skipped, not fatal
	writeTemplate(t, dir, "noname.yaml", `
body: "missing name"
`)
	writeTemplate(t, dir, "broken.yaml", `{{{not yaml`)

	loader := NewLoader()
	if err := loader.LoadFromDir(dir); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}

	if got := len(loader.List()); got != 2 {
		t.Errorf("expected 2 loaded templates, got %d", got)
	}

	tmpl := loader.Get("default")
	if tmpl == nil {
		t.Fatal("default template not found")
	}
	if tmpl.Title != "Certificate of Completion" {
		t.Errorf("unexpected title: %s", tmpl.Title)
	}

	if loader.Get("noname") != nil || loader.Get("broken") != nil {
		t.Error("invalid fixtures should not be loaded")
	}
}

func TestRendererFillsPlaceholders(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "default.yaml", `
name: default
title: Certificate of Completion
body: "This certifies that {{learner}} completed {{formation}}."
footer: "Issued on {{date}} by {{trainer}}"
`)

	loader := NewLoader()
	if err := loader.LoadFromDir(dir); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}

	renderer := NewRenderer(loader, "default")
	path, err := renderer.Render(context.Background(), "Lea Learner", "Go Fundamentals", "Tom Trainer", "2 January 2026")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read rendered file: %v", err)
	}

	out := string(data)
	for _, want := range []string{"Lea Learner", "Go Fundamentals", "Tom Trainer", "2 January 2026"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output missing %q", want)
		}
	}
	if strings.Contains(out, "{{") {
		t.Errorf("unfilled placeholder in output: %s", out)
	}
}

func TestRendererUnknownTemplate(t *testing.T) {
	renderer := NewRenderer(NewLoader(), "ghost")
	if _, err := renderer.Render(context.Background(), "a", "b", "c", "d"); err == nil {
		t.Fatal("expected error for unknown template")
	}
}
