package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := c.Render("match.found", map[string]any{
		"Opponent": "Bob", "Rating": 1340, "Side": "player1",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "Bob") || !strings.Contains(out, "1340") {
		t.Fatalf("template data not rendered: %q", out)
	}
}

func TestRenderMissingKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("expected error for missing template")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := "queue:\n  joined: \"custom {{.Mode}}\"\n"
	if err := os.WriteFile(filepath.Join(dir, "override.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New with overrides: %v", err)
	}
	out, err := c.Render("queue.joined", map[string]any{"Mode": "ranked"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "custom ranked" {
		t.Fatalf("override not applied: %q", out)
	}
	// non-overridden keys keep their defaults
	if _, err := c.Render("persistence.warning", nil); err != nil {
		t.Fatalf("default lost after override: %v", err)
	}
}
