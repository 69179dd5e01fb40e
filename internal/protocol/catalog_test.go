package protocol

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conrumbo/conrumbo/internal/nlp"
)

func TestForIntent(t *testing.T) {
	tests := []struct {
		intent nlp.Intent
		want   string
	}{
		{nlp.IntentParadaRespiratoria, "pa_no_respira_v1"},
		{nlp.IntentAtragantamiento, "pa_atragantamiento_v1"},
		{nlp.IntentHemorragia, "pa_hemorragia_v1"},
		{nlp.IntentInconsciente, "pa_inconsciente_v1"},
		{nlp.IntentConvulsiones, "pa_convulsiones_v1"},
		{nlp.IntentQuemadura, "pa_quemadura_v1"},
		{nlp.Intent("desconocido"), FallbackProtocolID},
		{nlp.Intent(""), FallbackProtocolID},
	}

	for _, tt := range tests {
		if got := ForIntent(tt.intent); got != tt.want {
			t.Errorf("ForIntent(%q) = %q, want %q", tt.intent, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protocols.json")
	content := `{
		"pa_hemorragia_v1": {
			"title": "Hemorragia",
			"steps": ["Aplica presión directa.", "Llama al 112."]
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p, ok := catalog.Get("pa_hemorragia_v1")
	if !ok {
		t.Fatal("pa_hemorragia_v1 not found")
	}
	if p.Title != "Hemorragia" {
		t.Errorf("Title = %q, want %q", p.Title, "Hemorragia")
	}
	if len(p.Steps) != 2 {
		t.Errorf("len(Steps) = %d, want 2", len(p.Steps))
	}

	if catalog.Has("pa_desconocido_v1") {
		t.Error("Has(unknown) = true, want false")
	}
	if catalog.Len() != 1 {
		t.Errorf("Len() = %d, want 1", catalog.Len())
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Error("Load(missing) error = nil, want error")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Load(invalid) error = nil, want error")
		}
	})

	t.Run("empty catalog", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.json")
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Load(empty) error = nil, want error")
		}
	})
}

func TestShippedCatalogCoversEveryIntent(t *testing.T) {
	catalog, err := Load(filepath.Join("..", "..", "protocols.json"))
	if err != nil {
		t.Fatalf("Load(protocols.json) error = %v", err)
	}

	for intent, id := range intentProtocols {
		p, ok := catalog.Get(id)
		if !ok {
			t.Errorf("protocol %q for intent %q missing from shipped catalog", id, intent)
			continue
		}
		if p.Title == "" {
			t.Errorf("protocol %q has empty title", id)
		}
		if len(p.Steps) == 0 {
			t.Errorf("protocol %q has no steps", id)
		}
	}

	if !catalog.Has(FallbackProtocolID) {
		t.Errorf("fallback protocol %q missing from shipped catalog", FallbackProtocolID)
	}
}
