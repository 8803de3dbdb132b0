package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := &Config{ServerURL: "ws://localhost:3030", Token: "tok", DefaultSession: "work"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ServerURL != "ws://localhost:3030" || loaded.Token != "tok" || loaded.DefaultSession != "work" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestTokenSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	src := &TokenSource{Path: path}

	if _, err := src.Token(); err == nil {
		t.Error("Token() should fail before the config exists")
	}

	if err := Save(path, &Config{Token: "first"}); err != nil {
		t.Fatal(err)
	}
	tok, err := src.Token()
	if err != nil || tok != "first" {
		t.Errorf("Token() = %q, %v", tok, err)
	}

	// A refreshed token is picked up without recreating the source.
	if err := Save(path, &Config{Token: "second"}); err != nil {
		t.Fatal(err)
	}
	tok, err = src.Token()
	if err != nil || tok != "second" {
		t.Errorf("Token() = %q, %v, want the refreshed token", tok, err)
	}
}
