package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	t.Run("missing file points at init", func(t *testing.T) {
		testPath := filepath.Join(t.TempDir(), "not-found.json")

		_, err := LoadFrom(testPath)
		if err == nil {
			t.Fatal("LoadFrom should error for missing file")
		}
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("expected fs.ErrNotExist, got: %v", err)
		}

		errMsg := err.Error()
		if !strings.Contains(errMsg, "no monitome config at "+testPath) {
			t.Errorf("error should name the path, got: %v", err)
		}
		if !strings.Contains(errMsg, "hint: run 'monitome init'") {
			t.Errorf("error should mention init command, got: %v", err)
		}
	})

	t.Run("rejected keys are listed", func(t *testing.T) {
		testPath := filepath.Join(t.TempDir(), "bad.json")
		os.WriteFile(testPath, []byte(`{"capture": {"cooldownSeconds": -3}, "indexing": {"workers": 0}}`), 0644)

		_, err := LoadFrom(testPath)
		var invalid *InvalidConfigError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidConfigError, got %v", err)
		}
		if invalid.Path != testPath {
			t.Errorf("expected path %q, got %q", testPath, invalid.Path)
		}

		keys := invalid.Keys()
		if len(keys) != 2 || keys[0] != "capture.cooldownSeconds" || keys[1] != "indexing.workers" {
			t.Errorf("unexpected keys: %v", keys)
		}

		errMsg := err.Error()
		if !strings.Contains(errMsg, "\n  - capture.cooldownSeconds:") {
			t.Errorf("error should list the key, got: %v", err)
		}
		if !strings.Contains(errMsg, "hint: fix the listed keys") {
			t.Errorf("error should contain a hint, got: %v", err)
		}
	})

	t.Run("parse error suggests the backup", func(t *testing.T) {
		testPath := filepath.Join(t.TempDir(), "broken.json")
		os.WriteFile(testPath, []byte(`{"capture": `), 0644)

		_, err := LoadFrom(testPath)
		var invalid *InvalidConfigError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidConfigError, got %v", err)
		}
		if len(invalid.Keys()) != 0 {
			t.Errorf("parse errors name no keys, got %v", invalid.Keys())
		}
		if !strings.Contains(err.Error(), testPath+".bak") {
			t.Errorf("error should mention the backup, got: %v", err)
		}
	})

	t.Run("write permission checked before save", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores file permissions")
		}
		testPath := filepath.Join(t.TempDir(), "readonly-save.json")
		os.WriteFile(testPath, []byte(`{}`), 0400)
		defer os.Chmod(testPath, 0644)

		err := Save(NewConfig(), testPath)
		if err == nil {
			t.Fatal("Save should error for read-only file")
		}
		if !errors.Is(err, fs.ErrPermission) {
			t.Errorf("expected fs.ErrPermission, got: %v", err)
		}

		errMsg := err.Error()
		if !strings.Contains(errMsg, "monitome cannot write config") {
			t.Errorf("error should mention the operation, got: %v", err)
		}
		if !strings.Contains(errMsg, "hint: ") {
			t.Errorf("error should contain fix hint, got: %v", err)
		}
	})
}

func TestPermissionErrorFormat(t *testing.T) {
	err := &PermissionError{
		Path:    "/etc/monitome.json",
		Op:      "read",
		Details: "owner root, mode -rw-------",
		Fix:     "sudo chown $USER /etc/monitome.json",
	}

	want := "monitome cannot read config /etc/monitome.json: permission denied\n" +
		"owner root, mode -rw-------\n" +
		"hint: sudo chown $USER /etc/monitome.json"
	if err.Error() != want {
		t.Errorf("unexpected message:\n%s", err.Error())
	}
	if errors.Is(err, fs.ErrNotExist) {
		t.Error("permission error should not match fs.ErrNotExist")
	}
}
