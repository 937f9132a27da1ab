// Foreman is an agent execution engine.
//
// Operators define agents (a goal, a system prompt, a model backend, and
// a set of tools) and converse with them over HTTP. Each session drives
// its agent through a bounded number of reasoning and tool-use steps
// until the agent declares the goal complete, runs out of steps, or is
// cancelled. Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	foreman serve                       Start the API server
//	foreman init [dir]                  Initialize a working directory with defaults
//	foreman ask <agent-id> <question>   Run a single turn against an agent
//	foreman ingest <agent-id> <file.md> Import a markdown document into agent memory
//	foreman version                     Print version and build information
//	foreman -o json version             Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dmathers/foreman/internal/api"
	"github.com/dmathers/foreman/internal/buildinfo"
	"github.com/dmathers/foreman/internal/config"
	"github.com/dmathers/foreman/internal/engine"
	"github.com/dmathers/foreman/internal/ingest"
	"github.com/dmathers/foreman/internal/llm"
	"github.com/dmathers/foreman/internal/plan"
	"github.com/dmathers/foreman/internal/store"
	"github.com/dmathers/foreman/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the foreman command. OS-level
// dependencies are injected as parameters; args is os.Args[1:]. The
// arguments are parsed by hand because the flag package relies on
// package-level globals, which makes it impossible to call run()
// concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) < 2 {
			return fmt.Errorf("usage: foreman ask <agent-id> <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs[0], strings.Join(cmdArgs[1:], " "))
	case "ingest":
		if len(cmdArgs) < 2 {
			return fmt.Errorf("usage: foreman ingest <agent-id> <file.md>")
		}
		return runIngest(stdout, configPath, cmdArgs[0], cmdArgs[1])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Foreman - Agent Execution Engine")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: foreman [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                       Start the API server")
	fmt.Fprintln(w, "  init [dir]                  Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask <agent-id> <question>   Run a single turn against an agent")
	fmt.Fprintln(w, "  ingest <agent-id> <file>    Import markdown into agent memory")
	fmt.Fprintln(w, "  version                     Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./foreman.yaml, ~/.config/foreman/config.yaml, /etc/foreman/config.yaml")
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.RuntimeInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return llm.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// buildRegistry wires one client per configured provider. Providers with
// no credentials are still registered; they surface a ConfigurationError
// on first use, which tells the operator exactly what is missing.
func buildRegistry(cfg *config.Config, logger *slog.Logger) *llm.Registry {
	registry := llm.NewRegistry()
	registry.Register("openai", llm.NewOpenAIClient(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.BaseURL, logger))
	registry.Register("anthropic", llm.NewAnthropicClient(cfg.Providers.Anthropic.APIKey, logger))
	registry.Register("gemini", llm.NewGeminiClient(cfg.Providers.Gemini.APIKey, logger))
	return registry
}

// seedBuiltinTools makes sure every builtin tool descriptor exists in
// the store. Existing descriptors are left untouched.
func seedBuiltinTools(st *store.Store) error {
	for _, desc := range tools.BuiltinDescriptors() {
		if _, err := st.GetToolByName(desc.Name); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := st.CreateTool(desc); err != nil {
			return err
		}
	}
	return nil
}

// openEverything loads config and constructs the full engine stack.
func openEverything(configPath string, logger *slog.Logger) (*config.Config, *store.Store, *engine.Engine, *plan.Tracker, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger.Info("config loaded", "path", cfgPath)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.Open(filepath.Join(cfg.DataDir, "foreman.db"))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := seedBuiltinTools(st); err != nil {
		st.Close()
		return nil, nil, nil, nil, fmt.Errorf("seed builtin tools: %w", err)
	}

	toolsBase := cfg.Tools.BaseURL
	if toolsBase == "" {
		toolsBase = fmt.Sprintf("http://127.0.0.1:%d", cfg.Listen.Port)
	}

	registry := buildRegistry(cfg, logger)
	tracker := plan.NewTracker(st, logger)
	dispatcher := tools.NewDispatcher(toolsBase, cfg.Tools.Token, logger)
	eng := engine.New(st, registry, tracker, dispatcher, cfg.Engine, logger)

	return cfg, st, eng, tracker, nil
}

// runServe is the primary operating mode: it starts the HTTP API and
// blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting foreman", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, st, eng, tracker, err := openEverything(configPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Reconfigure with the configured level now that config is loaded.
	logger = newLogger(stdout, parseLogLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	server := api.NewServer(cfg, st, eng, tracker, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// runAsk runs a single turn against an agent from the command line:
// create a throwaway session, send one message, print the reply.
func runAsk(ctx context.Context, stdout io.Writer, configPath, agentID, question string) error {
	logger := newLogger(io.Discard, slog.LevelError)

	_, st, eng, _, err := openEverything(configPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	agent, err := st.GetAgent(agentID)
	if err != nil {
		return fmt.Errorf("agent %s: %w", agentID, err)
	}
	sess, err := st.CreateSession(agent.TenantID, agent.ID)
	if err != nil {
		return err
	}

	result, err := eng.SendMessage(ctx, sess.ID, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, result.AssistantText)
	fmt.Fprintf(stdout, "\n[session %s: %s, goal_met=%v, tokens=%d]\n",
		sess.ID, result.SessionStatus, result.GoalMet, result.TokensUsed)
	return nil
}

// runIngest imports a markdown document into an agent's memories.
func runIngest(stdout io.Writer, configPath, agentID, filePath string) error {
	logger := newLogger(stdout, slog.LevelInfo)

	_, st, _, _, err := openEverything(configPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.GetAgent(agentID); err != nil {
		return fmt.Errorf("agent %s: %w", agentID, err)
	}

	source := "file:" + filePath
	ingester := ingest.NewIngester(st, agentID, source, 0.6)

	count, err := ingester.IngestFile(filePath)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	logger.Info("ingestion complete", "memories_created", count, "source", source)
	fmt.Fprintf(stdout, "Imported %d memories from %s\n", count, filePath)
	return nil
}
