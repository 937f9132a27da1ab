package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const starterConfig = `# Foreman configuration.
# Environment variables in values are expanded at load time.

listen:
  address: "0.0.0.0"
  port: 8080

data_dir: "./data"
log_level: "info"

providers:
  openai:
    api_key: "${OPENAI_API_KEY}"
  anthropic:
    api_key: "${ANTHROPIC_API_KEY}"
  gemini:
    api_key: "${GEMINI_API_KEY}"

engine:
  goal_sentinel: "GOAL_COMPLETE"
  autonomy_cap: 3
  planning_tool: "update_plan"
  max_tokens: 4096
  memory_limit: 10

tools:
  # base_url defaults to the local listen address when empty.
  base_url: ""
  # Shared secret for the builtin tool endpoints. Leave empty to disable auth.
  token: ""

workspace:
  path: "./workspace"
`

// runInit seeds a working directory with a starter config and the
// directories serve mode expects. Existing files are never overwritten.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	for _, sub := range []string{"data", "workspace"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", sub, err)
		}
	}

	created, err := writeIfMissing(filepath.Join(dir, "foreman.yaml"), starterConfig)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(stdout, "Created %s\n", filepath.Join(dir, "foreman.yaml"))
	} else {
		fmt.Fprintf(stdout, "Skipped %s (already exists)\n", filepath.Join(dir, "foreman.yaml"))
	}

	fmt.Fprintln(stdout, "\nNext steps:")
	fmt.Fprintln(stdout, "  1. Set provider API keys in the environment or edit foreman.yaml")
	fmt.Fprintln(stdout, "  2. Run: foreman serve")
	fmt.Fprintln(stdout, "  3. Create an agent: POST /v1/agents")
	return nil
}

// writeIfMissing writes content to path unless the file already exists.
// Reports whether the file was created.
func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
