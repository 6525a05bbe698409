package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/wasm-gc/host"
	"github.com/wippyai/wasm-gc/metrics"
)

type options struct {
	wasmFile    string
	funcName    string
	configFile  string
	logLevel    string
	arenaSize   uint
	showMetrics bool
}

func main() {
	var (
		opts        options
		interactive = flag.Bool("i", false, "Interactive collector shell over an in-process arena")
	)
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to a wasm32 module importing \"gc\"")
	flag.StringVar(&opts.funcName, "func", "", "Function to call (default: _start, run or main)")
	flag.StringVar(&opts.configFile, "config", "", "JSON configuration file")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.UintVar(&opts.arenaSize, "arena", 64*1024, "Arena size in bytes for -i")
	flag.BoolVar(&opts.showMetrics, "metrics", false, "Print collector metrics after the run")
	flag.Parse()

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if opts.wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: gcrun -wasm <file.wasm> [-func name] [-config gc.json] [-log-level debug] [-metrics]")
		fmt.Fprintln(os.Stderr, "       gcrun -i [-arena bytes]  (interactive shell)")
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	ctx := context.Background()

	cfg, level, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	log, err := newLogger(level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	reg := prometheus.NewRegistry()
	cfg.Collector.Logger = log
	cfg.Collector.Observer = metrics.NewMetrics(reg)

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return fmt.Errorf("instantiate WASI: %w", err)
	}
	binding, err := host.Instantiate(ctx, rt, host.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("instantiate gc: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	fmt.Printf("Module: %s\n", opts.wasmFile)
	fmt.Printf("Imports: %d\n", len(compiled.ImportedFunctions()))
	fmt.Printf("Exports: %d\n", len(compiled.ExportedFunctions()))

	modCfg := wazero.NewModuleConfig().
		WithName(opts.wasmFile).
		WithStdout(os.Stdout).
		WithStderr(os.Stderr).
		WithArgs(opts.wasmFile).
		WithStartFunctions()
	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer binding.Release(mod)

	funcName, err := pickFunction(compiled, opts.funcName)
	if err != nil {
		return err
	}

	fmt.Printf("\nCalling %s()...\n", funcName)
	results, err := mod.ExportedFunction(funcName).Call(ctx)
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			return fmt.Errorf("call %s: %w", funcName, err)
		}
	}
	if len(results) > 0 {
		fmt.Printf("Result: %v\n", results)
	}

	if c, ok := binding.Collector(mod); ok {
		fmt.Println()
		fmt.Print(renderStats(c.Stats(), terminalWidth()))
	} else {
		fmt.Println("\nThe guest never called gc.init.")
	}

	if opts.showMetrics {
		fmt.Println()
		return printMetrics(reg)
	}
	return nil
}

// pickFunction returns name, or the first common entry point the module
// exports, or its only exported function.
func pickFunction(compiled wazero.CompiledModule, name string) (string, error) {
	exported := compiled.ExportedFunctions()
	if name != "" {
		if _, ok := exported[name]; !ok {
			return "", fmt.Errorf("function %q is not exported", name)
		}
		return name, nil
	}
	for _, candidate := range []string{"_start", "run", "main"} {
		if def, ok := exported[candidate]; ok && len(def.ParamTypes()) == 0 {
			return candidate, nil
		}
	}
	var names []string
	for n, def := range exported {
		if len(def.ParamTypes()) == 0 {
			names = append(names, n)
		}
	}
	if len(names) == 1 {
		return names[0], nil
	}
	slices.Sort(names)
	return "", fmt.Errorf("no entry point found, use -func with one of %v", names)
}

// loadConfig reads the host configuration and the "log_level" key.
func loadConfig(path string) (host.Config, string, error) {
	if path == "" {
		return host.DefaultConfig(), "info", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return host.Config{}, "", fmt.Errorf("read config: %w", err)
	}
	cfg, err := host.ParseConfig(data)
	if err != nil {
		return host.Config{}, "", fmt.Errorf("parse config: %w", err)
	}
	level := gjson.GetBytes(data, "log_level").String()
	if level == "" {
		level = "info"
	}
	return cfg, level, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}
