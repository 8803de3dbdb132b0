package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".chet", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestArchivePath(t *testing.T) {
	got := ArchivePath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "archive.db")) {
		t.Errorf("ArchivePath(test) = %q, want suffix sessions/test/archive.db", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}

func TestLogPathUnderLogDir(t *testing.T) {
	if filepath.Dir(LogPath("test")) != LogDir("test") {
		t.Errorf("LogPath(test) = %q not under LogDir %q", LogPath("test"), LogDir("test"))
	}
}
