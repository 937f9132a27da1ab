package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var out, errBuf bytes.Buffer
	if err := run(context.Background(), &out, &errBuf, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Usage: foreman") {
		t.Errorf("expected usage output, got: %s", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errBuf bytes.Buffer
	err := run(context.Background(), &out, &errBuf, []string{"bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected unknown command error, got: %v", err)
	}
}

func TestRunUnknownOutputFormat(t *testing.T) {
	var out, errBuf bytes.Buffer
	err := run(context.Background(), &out, &errBuf, []string{"-o", "xml", "version"})
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("expected output format error, got: %v", err)
	}
}

func TestRunVersionText(t *testing.T) {
	var out, errBuf bytes.Buffer
	if err := run(context.Background(), &out, &errBuf, []string{"version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "foreman") {
		t.Errorf("expected version output, got: %s", out.String())
	}
}

func TestRunVersionJSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	if err := run(context.Background(), &out, &errBuf, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("version json did not parse: %v\n%s", err, out.String())
	}
	for _, k := range []string{"version", "go_version", "os", "arch"} {
		if info[k] == "" {
			t.Errorf("missing %q in version json", k)
		}
	}
}

func TestRunInitCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	var out, errBuf bytes.Buffer
	if err := run(context.Background(), &out, &errBuf, []string{"init", dir}); err != nil {
		t.Fatalf("init: %v", err)
	}

	cfgPath := filepath.Join(dir, "foreman.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("config not created: %v", err)
	}
	if !strings.Contains(string(data), "goal_sentinel") {
		t.Errorf("starter config missing engine section")
	}
	for _, sub := range []string{"data", "workspace"} {
		if fi, err := os.Stat(filepath.Join(dir, sub)); err != nil || !fi.IsDir() {
			t.Errorf("expected %s directory, err=%v", sub, err)
		}
	}
}

func TestRunInitDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "foreman.yaml")
	if err := os.WriteFile(cfgPath, []byte("existing: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errBuf bytes.Buffer
	if err := run(context.Background(), &out, &errBuf, []string{"init", dir}); err != nil {
		t.Fatalf("init: %v", err)
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "existing: true\n" {
		t.Errorf("init overwrote existing config: %s", data)
	}
	if !strings.Contains(out.String(), "Skipped") {
		t.Errorf("expected skip notice, got: %s", out.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace": "DEBUG-4",
		"debug": "DEBUG",
		"info":  "INFO",
		"warn":  "WARN",
		"error": "ERROR",
		"":      "INFO",
	}
	for in, want := range cases {
		if got := parseLogLevel(in).String(); got != want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
