package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestRotatingFileRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controller.log")

	rf, err := newRotatingFile(path)
	if err != nil {
		t.Fatalf("newRotatingFile: %v", err)
	}
	defer rf.Close()

	chunk := make([]byte, 1024)
	for i := range chunk {
		chunk[i] = 'x'
	}
	writes := rotateMaxBytes/len(chunk) + 2
	for i := 0; i < writes; i++ {
		if _, err := rf.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected rotated backup %s.1 to exist: %v", path, err)
	}
}

func TestRotatingFileShiftsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controller.log")

	for i := 1; i <= rotateMaxBackup; i++ {
		name := fmt.Sprintf("%s.%d", path, i)
		if err := os.WriteFile(name, []byte(fmt.Sprintf("backup-%d", i)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(path, []byte("current"), 0o644); err != nil {
		t.Fatal(err)
	}

	rf, err := newRotatingFile(path)
	if err != nil {
		t.Fatalf("newRotatingFile: %v", err)
	}
	defer rf.Close()
	if err := rf.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if _, err := os.Stat(fmt.Sprintf("%s.%d", path, rotateMaxBackup)); err != nil {
		t.Fatalf("expected oldest backup shifted into slot %d: %v", rotateMaxBackup, err)
	}
	data, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("expected .1 to hold the just-rotated log: %v", err)
	}
	if string(data) != "current" {
		t.Errorf("expected .1 to contain the rotated-out file's contents, got %q", data)
	}
}

func TestNewLoggerDefaultsToStdout(t *testing.T) {
	cfg := baseValidConfig()
	logger, closer := newLogger(cfg)
	defer closer.Close()
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Log.File = filepath.Join(t.TempDir(), "daemon.log")
	logger, closer := newLogger(cfg)
	defer closer.Close()

	logger.Info("hello from test")

	data, err := os.ReadFile(cfg.Log.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain output")
	}
}
