package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf("log_dir = %q\nrender_interval_ms = 10\npoll_interval_ms = 5\n", filepath.Join(dir, "logs"))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunHeadlessPrintsLogFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "boot.log")
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := Run(ctx, Options{
		ConfigPath: writeConfig(t, dir),
		File:       logPath,
		Stdout:     &out,
		Stderr:     &bytes.Buffer{},
		Headless:   true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{"first", "second", "third"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output = %q, want it to contain %q", got, want)
		}
	}
	if strings.Index(got, "first") > strings.Index(got, "third") {
		t.Fatalf("output = %q, want file order", got)
	}
}

func TestRunHeadlessStdinSession(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := Run(ctx, Options{
		ConfigPath: writeConfig(t, dir),
		Connect:    "-",
		Stdin:      strings.NewReader("alpha\nbeta\n"),
		Stdout:     &out,
		Stderr:     &bytes.Buffer{},
		Headless:   true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{"alpha", "beta"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output = %q, want it to contain %q", got, want)
		}
	}

	logs, err := filepath.Glob(filepath.Join(dir, "logs", "tether_*.log"))
	if err != nil || len(logs) == 0 {
		t.Fatalf("session log not written: %v %v", logs, err)
	}
	saved, err := os.ReadFile(logs[0])
	if err != nil {
		t.Fatalf("read session log: %v", err)
	}
	if !strings.Contains(string(saved), "beta") {
		t.Fatalf("session log = %q, want it to contain beta", saved)
	}
}

func TestRunHeadlessNeedsInput(t *testing.T) {
	dir := t.TempDir()
	err := Run(context.Background(), Options{
		ConfigPath: writeConfig(t, dir),
		Stdout:     &bytes.Buffer{},
		Stderr:     &bytes.Buffer{},
		Headless:   true,
	})
	if err == nil {
		t.Fatal("Run() error = nil, want an error without a file or connection")
	}
}
