package config

import (
	"path/filepath"
	"testing"
)

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ippd.toml")

	cfg := Default()
	cfg.Hostname = "printer.local"
	cfg.Port = 9631
	cfg.Printers = []PrinterFile{{Name: "office", DeviceURI: "usb://Example/Printer", Driver: "generic"}}

	if err := WriteDefault(path, cfg); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Hostname != cfg.Hostname || got.Port != cfg.Port {
		t.Errorf("got %+v, want hostname/port %q/%d", got, cfg.Hostname, cfg.Port)
	}
	if len(got.Printers) != 1 || got.Printers[0].Name != "office" {
		t.Errorf("printers did not round-trip: %+v", got.Printers)
	}
}

func TestWriteDefaultRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ippd.toml")
	if err := WriteDefault(path, Default()); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if err := WriteDefault(path, Default()); err == nil {
		t.Fatal("expected WriteDefault to refuse overwriting an existing file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error loading a missing config file")
	}
}

func TestSpoolDirectoryDefaultsToTempDir(t *testing.T) {
	dir, err := SpoolDirectory(File{})
	if err != nil {
		t.Fatalf("SpoolDirectory: %v", err)
	}
	if dir == "" {
		t.Fatal("expected a non-empty default spool directory")
	}
}

func TestSpoolDirectoryHonorsConfig(t *testing.T) {
	want := filepath.Join(t.TempDir(), "spool")
	got, err := SpoolDirectory(File{SpoolDir: want})
	if err != nil {
		t.Fatalf("SpoolDirectory: %v", err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLogDirectoryEmptyMeansStderrOnly(t *testing.T) {
	dir, err := LogDirectory(File{})
	if err != nil {
		t.Fatalf("LogDirectory: %v", err)
	}
	if dir != "" {
		t.Errorf("expected empty log directory, got %q", dir)
	}
}

func TestGetConfigSearchPathsIncludesCWD(t *testing.T) {
	paths := GetConfigSearchPaths("ippd.toml")
	if len(paths) == 0 {
		t.Fatal("expected at least one candidate search path")
	}
	last := paths[len(paths)-1]
	if last != filepath.Join(".", "ippd.toml") {
		t.Errorf("expected the last search path to be the working directory, got %q", last)
	}
}
