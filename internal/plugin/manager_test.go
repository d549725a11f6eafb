package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, root, dir string, m Manifest) string {
	t.Helper()

	pluginDir := filepath.Join(root, dir)
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, "plugin.json"), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return pluginDir
}

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()
	pluginDir := writeManifest(t, tmpDir, "keyboard", Manifest{
		Name:        "keyboard",
		Version:     "1.0.0",
		Description: "Types letters",
		Executable:  "keyboard",
		Actions:     []string{"type", "keystroke"},
	})

	manager := NewManager(tmpDir, nil)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}
	p := plugins[0]
	if p.Manifest.Name != "keyboard" || p.Manifest.Description != "Types letters" {
		t.Errorf("unexpected manifest %+v", p.Manifest)
	}
	if p.Path != pluginDir {
		t.Errorf("expected path %q, got %q", pluginDir, p.Path)
	}
	if p.Executable != filepath.Join(pluginDir, "keyboard") {
		t.Errorf("unexpected executable %q", p.Executable)
	}
	if !p.Supports("type") || p.Supports("volume-up") {
		t.Error("Supports() does not follow the manifest actions")
	}
}

func TestManager_Discover_SkipsBadEntries(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, "b-plugin", Manifest{Name: "b", Executable: "b"})
	writeManifest(t, tmpDir, "a-plugin", Manifest{Name: "a", Executable: "a"})
	writeManifest(t, tmpDir, "no-exec", Manifest{Name: "c"})

	if err := os.MkdirAll(filepath.Join(tmpDir, "broken"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "broken", "plugin.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "loose-file.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(tmpDir, nil)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0].Manifest.Name != "a" || plugins[1].Manifest.Name != "b" {
		t.Errorf("List() not sorted: %s, %s", plugins[0].Manifest.Name, plugins[1].Manifest.Name)
	}
}

func TestManager_Discover_MissingDir(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "nope"), nil)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() on a missing dir should succeed, got %v", err)
	}
	if len(manager.List()) != 0 {
		t.Error("expected no plugins")
	}
}

func TestManager_Get(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, "keyboard", Manifest{Name: "keyboard", Executable: "keyboard"})

	manager := NewManager(tmpDir, nil)
	manager.Discover()

	if _, err := manager.Get("keyboard"); err != nil {
		t.Errorf("Get() error = %v", err)
	}
	if _, err := manager.Get("mouse"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Get() error = %v, want ErrPluginNotFound", err)
	}
	if manager.PluginDir() != tmpDir {
		t.Errorf("PluginDir() = %q, want %q", manager.PluginDir(), tmpDir)
	}
}
