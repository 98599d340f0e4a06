//go:build !no_automation

package automation

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scripts")
	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	return m, dir
}

func TestManagerListEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	scripts, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) != 0 {
		t.Errorf("list count = %d, want 0", len(scripts))
	}
}

func TestManagerListSkipsNonLuaFiles(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, dir, "alarm.lua", `log("hi")`)
	writeFile(t, dir, "README.md", `not a script`)

	scripts, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) != 1 || scripts[0].ID != "alarm" {
		t.Errorf("scripts = %+v, want one script with id alarm", scripts)
	}
}

func TestManagerGet(t *testing.T) {
	m, dir := newTestManager(t)
	writeFile(t, dir, "flash_lights.lua", `on_transition(function(e) log(e.kind) end)`)

	s, err := m.Get("flash_lights")
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "flash_lights" {
		t.Errorf("id = %q, want flash_lights", s.ID)
	}
	if s.LuaCode != `on_transition(function(e) log(e.kind) end)` {
		t.Errorf("lua_code = %q", s.LuaCode)
	}
}

func TestManagerGetNotFound(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Get("nonexistent"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestManagerGetRejectsUnsafeID(t *testing.T) {
	m, _ := newTestManager(t)
	for _, id := range []string{"", ".", "..", "../etc/passwd", "a/b"} {
		if _, err := m.Get(id); err == nil {
			t.Errorf("Get(%q): expected error, got nil", id)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
