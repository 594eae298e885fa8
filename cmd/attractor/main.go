// ABOUTME: CLI entry point: run, resume, validate, or print a DOT pipeline graph.
// ABOUTME: Streams engine events to stdout and optionally serves the HTTP monitor.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/ulid/v2"

	"github.com/2389-research/attractor/attractor"
	"github.com/2389-research/attractor/dot"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "resume":
		err = resumeCmd(os.Args[2:])
	case "validate":
		err = validateCmd(os.Args[2:])
	case "print":
		err = printCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  attractor run [-config run.yaml] [-var NAME=value ...] <pipeline.dot>
  attractor resume [-config run.yaml] -logs-root <dir>
  attractor validate <pipeline.dot>
  attractor print <pipeline.dot>`)
}

// varFlags collects repeated -var NAME=value flags.
type varFlags map[string]string

func (v varFlags) String() string { return "" }

func (v varFlags) Set(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			v[s[:i]] = s[i+1:]
			return nil
		}
	}
	return fmt.Errorf("expected NAME=value, got %q", s)
}

// setupEngine builds an engine from the run config, wires the stdout event
// printer, log sinks, and the optional HTTP monitor, and returns a cleanup
// function for resources that need closing.
func setupEngine(cfg *attractor.RunConfig, engineCfg attractor.EngineConfig, runID string) (*attractor.Engine, func(), error) {
	engineCfg.RunID = runID
	engine := attractor.NewEngine(engineCfg)
	cleanup := func() {}

	// Print events as log lines.
	engine.Events().Subscribe(func(evt attractor.Event) {
		if evt.NodeID != "" {
			fmt.Printf("%s  %-26s %s\n", evt.Timestamp.Format("15:04:05.000"), evt.Type, evt.NodeID)
		} else {
			fmt.Printf("%s  %s\n", evt.Timestamp.Format("15:04:05.000"), evt.Type)
		}
	})

	var sink attractor.LogSink
	switch {
	case cfg.EventDB != "":
		s, err := attractor.OpenSqliteLogSink(cfg.EventDB)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = s.Close() }
		s.SubscribeEngine(engine, runID)
		sink = s
	case cfg.LogsRoot != "":
		s, err := attractor.NewFSLogSink(cfg.LogsRoot)
		if err != nil {
			return nil, nil, err
		}
		s.SubscribeEngine(engine, runID)
		sink = s
	}

	if cfg.MonitorAddr != "" {
		monitor := attractor.NewMonitorServer(engine, sink, runID)
		go func() {
			if err := http.ListenAndServe(cfg.MonitorAddr, monitor.Router()); err != nil {
				fmt.Fprintln(os.Stderr, "monitor server:", err)
			}
		}()
	}

	return engine, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func reportResult(runID string, result *attractor.RunResult) {
	if result == nil {
		return
	}
	fmt.Printf("run %s: %s (%d node(s), last %s)\n",
		runID, result.Status, len(result.CompletedNodes), result.LastNode)
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML run configuration")
	vars := varFlags{}
	fs.Var(vars, "var", "variable override NAME=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one pipeline file")
	}

	source, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	cfg, err := attractor.LoadRunConfig(*configPath)
	if err != nil {
		return err
	}
	engineCfg := cfg.EngineConfig()
	if engineCfg.VarOverrides == nil {
		engineCfg.VarOverrides = map[string]string{}
	}
	for k, v := range vars {
		engineCfg.VarOverrides[k] = v
	}

	runID := ulid.Make().String()
	engine, cleanup, err := setupEngine(cfg, engineCfg, runID)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	result, err := engine.Run(ctx, string(source))
	reportResult(runID, result)
	return err
}

func resumeCmd(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML run configuration")
	logsRoot := fs.String("logs-root", "", "logs root of the interrupted run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *logsRoot == "" {
		return fmt.Errorf("-logs-root is required")
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("resume takes no pipeline file; the saved graph under the logs root is used")
	}

	cfg, err := attractor.LoadRunConfig(*configPath)
	if err != nil {
		return err
	}
	engineCfg := cfg.EngineConfig()
	engineCfg.LogsRoot = *logsRoot

	runID := ulid.Make().String()
	engine, cleanup, err := setupEngine(cfg, engineCfg, runID)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	result, err := engine.Resume(ctx)
	reportResult(runID, result)
	return err
}

func validateCmd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one pipeline file")
	}
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	ast, err := dot.Parse(string(source))
	if err != nil {
		return err
	}
	graph, err := attractor.Build(ast)
	if err != nil {
		return err
	}
	graph = attractor.ApplyTransforms(graph, attractor.DefaultTransforms()...)

	diags := attractor.Validate(graph)
	for _, d := range diags {
		where := ""
		if d.NodeID != "" {
			where = " node=" + d.NodeID
		}
		if d.EdgeID != "" {
			where = " edge=" + d.EdgeID
		}
		fmt.Printf("%s %s:%s %s\n", d.Severity, d.Code, where, d.Message)
	}
	for _, d := range diags {
		if d.Severity == attractor.SeverityError {
			return fmt.Errorf("validation failed")
		}
	}
	fmt.Println("ok")
	return nil
}

func printCmd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one pipeline file")
	}
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	ast, err := dot.Parse(string(source))
	if err != nil {
		return err
	}
	graph, err := attractor.Build(ast)
	if err != nil {
		return err
	}

	fmt.Printf("digraph %s: %d node(s), %d edge(s)\n", graph.Name, len(graph.NodeIDs()), len(graph.Edges))
	for _, node := range graph.Nodes() {
		fmt.Printf("  node %-20s shape=%-14s type=%-18s retries=%d\n", node.ID, node.Shape, node.Type, node.MaxRetries)
	}
	for _, edge := range graph.Edges {
		line := fmt.Sprintf("  edge %s -> %s", edge.From, edge.To)
		if edge.Condition != "" {
			line += fmt.Sprintf(" [condition=%q]", edge.Condition)
		}
		if edge.Weight != 0 {
			line += fmt.Sprintf(" [weight=%d]", edge.Weight)
		}
		fmt.Println(line)
	}
	return nil
}
