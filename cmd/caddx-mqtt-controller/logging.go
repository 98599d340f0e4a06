package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	rotateMaxBytes  = 10 * 1024 * 1024 // 10MB
	rotateMaxBackup = 5
)

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// rotatingFile is a minimal size-and-count log rotator in the style of
// logrotate's "rotate 5" / "maxsize 10M": once the active file crosses
// rotateMaxBytes it is renamed .1 (shifting .1->.2 ... .4->.5, dropping .5)
// and a fresh file is opened in its place. No third-party rotation library
// appears anywhere in the reference corpus, so this stays on os/io.
type rotatingFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
	size int64
}

func newRotatingFile(path string) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	return &rotatingFile{path: path, f: f, size: info.Size()}, nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size+int64(len(p)) > rotateMaxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) rotate() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close log file for rotation: %w", err)
	}
	for i := rotateMaxBackup - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", r.path, i)
		dst := fmt.Sprintf("%s.%d", r.path, i+1)
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	os.Rename(r.path, r.path+".1")

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopen log file: %w", err)
	}
	r.f = f
	r.size = 0
	return nil
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

// newLogger builds the process logger from cfg.Log, optionally teeing output
// to a rotating file. Returns a closer to flush/close the file on shutdown,
// which is a no-op when no log file is configured.
func newLogger(cfg *Config) (*slog.Logger, io.Closer) {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = noopCloser{}
	if cfg.Log.File != "" {
		rf, err := newRotatingFile(cfg.Log.File)
		if err != nil {
			slog.New(slog.NewTextHandler(os.Stderr, nil)).Warn("open log file, falling back to stdout", "err", err)
		} else {
			out = io.MultiWriter(os.Stdout, rf)
			closer = rf
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer
}
