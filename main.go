package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sambeau/scrapeql/config"
	"github.com/sambeau/scrapeql/pkg/scrapeql/cache"
	"github.com/sambeau/scrapeql/pkg/scrapeql/checker"
	"github.com/sambeau/scrapeql/pkg/scrapeql/dom"
	qlerrors "github.com/sambeau/scrapeql/pkg/scrapeql/errors"
	"github.com/sambeau/scrapeql/pkg/scrapeql/fetch"
	"github.com/sambeau/scrapeql/pkg/scrapeql/logging"
	"github.com/sambeau/scrapeql/pkg/scrapeql/objstore"
	"github.com/sambeau/scrapeql/pkg/scrapeql/parser"
	"github.com/sambeau/scrapeql/pkg/scrapeql/repl"
	"github.com/sambeau/scrapeql/pkg/scrapeql/runner"
	"github.com/sambeau/scrapeql/pkg/scrapeql/sink"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

// errReported means diagnostics have already been printed.
var errReported = errors.New("errors reported")

// usageError is a command line mistake.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func main() {
	ctx := context.Background()
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps run's result to the process exit status: 0 on success, 1
// when a statement failed to parse, check or run, 2 for usage, config and
// file errors.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errReported):
		return 1
	}
	return 2
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	// Set up flags
	flags := flag.NewFlagSet("scrapeql", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { printUsage(stderr) }

	var (
		configPath  = flags.String("config", "", "Path to config file")
		check       = flags.Bool("check", false, "Check files without running them")
		keepGoing   = flags.Bool("keep-going", false, "Continue after a failing statement")
		watch       = flags.Bool("watch", false, "Re-run the input file when it changes")
		jsonErrors  = flags.Bool("json", false, "Print errors as JSON")
		input       string
		eval        string
		debug       bool
		showVersion bool
		showHelp    bool
	)
	flags.StringVar(&input, "i", "", "Input file")
	flags.StringVar(&input, "input", "", "Input file")
	flags.StringVar(&eval, "e", "", "Statements to run")
	flags.StringVar(&eval, "eval", "", "Statements to run")
	flags.BoolVar(&debug, "d", false, "Debug logging")
	flags.BoolVar(&debug, "debug", false, "Debug logging")
	flags.BoolVar(&showVersion, "V", false, "Show version")
	flags.BoolVar(&showVersion, "version", false, "Show version")
	flags.BoolVar(&showHelp, "h", false, "Show help")
	flags.BoolVar(&showHelp, "help", false, "Show help")

	// Parse flags
	if err := flags.Parse(args); err != nil {
		return usageError{err.Error()}
	}

	// Handle --help
	if showHelp {
		printUsage(stdout)
		return nil
	}

	// Handle --version
	if showVersion {
		fmt.Fprintf(stdout, "scrapeql version %s\n", Version)
		return nil
	}

	rep := &reporter{w: stderr, json: *jsonErrors}

	// --check needs no configuration
	if *check {
		files := flags.Args()
		if input != "" {
			files = append([]string{input}, files...)
		}
		if len(files) == 0 {
			return usageError{"--check requires at least one file"}
		}
		return checkFiles(files, rep)
	}

	if input == "" && flags.NArg() > 0 {
		input = flags.Arg(0)
	}
	if *watch && input == "" {
		return usageError{"--watch requires an input file"}
	}
	if input != "" && eval != "" {
		return usageError{"use either --input or --eval, not both"}
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configPath, getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	env, err := newEnvironment(ctx, cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer env.Close()

	switch {
	case eval != "":
		return runSource(ctx, env.newRunner(), eval, "", *keepGoing, rep)
	case *watch:
		return watchFile(ctx, input, env, *keepGoing, rep)
	case input != "":
		return runFile(ctx, env.newRunner(), input, *keepGoing, rep)
	}

	return repl.Start(ctx, env.newRunner(), stdout, repl.Config{
		Prompt:      cfg.REPL.Prompt,
		HistoryFile: config.ExpandHome(cfg.REPL.HistoryFile),
		Version:     Version,
	})
}

// environment holds the collaborators shared by every runner of one
// invocation.
type environment struct {
	logger   logging.Logger
	fetcher  *fetch.Fetcher
	selector *dom.Selector
	sink     *sink.Sink
	closers  []func() error
}

func newEnvironment(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (*environment, error) {
	env := &environment{selector: dom.NewSelector()}

	// Logging
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logOut, closeLog, err := logging.Open(cfg.Logging.Output, stdout, stderr)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, closeLog)
	env.logger = logging.New(logOut, cfg.Logging.Format, level)
	if cfg.Path != "" {
		env.logger.Debug("loaded config", "path", cfg.Path)
	}

	fetchOpts := []fetch.Option{fetch.WithLogger(env.logger)}
	sinkOpts := []sink.Option{sink.WithStdout(stdout), sink.WithLogger(env.logger)}

	// Document cache
	if cfg.Cache.Enabled {
		c, err := cache.Open(cache.Config{Path: cfg.Cache.Path, TTL: cfg.Cache.TTL})
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		env.closers = append(env.closers, c.Close)
		if n, err := c.Purge(); err != nil {
			env.logger.Warn("cache purge failed", "error", err)
		} else if n > 0 {
			env.logger.Debug("purged expired documents", "count", n)
		}
		fetchOpts = append(fetchOpts, fetch.WithCache(c))
	}

	// Object storage
	store, err := objstore.New(ctx, objstore.Config{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey.Value(),
		UsePathStyle:    cfg.S3.UsePathStyle,
	})
	if err != nil {
		env.logger.Warn("s3 sources and destinations disabled", "error", err)
	} else {
		fetchOpts = append(fetchOpts, fetch.WithObjectStore(store))
		sinkOpts = append(sinkOpts, sink.WithObjectStore(store))
	}

	env.fetcher = fetch.New(fetch.Config{
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.Fetch.UserAgent,
		MaxBytes:  cfg.MaxBytes(),
	}, fetchOpts...)
	env.sink = sink.New(sink.Config{Level: cfg.Output.Compression}, sinkOpts...)

	return env, nil
}

// newRunner returns a runner with an empty scope.
func (e *environment) newRunner() *runner.Runner {
	return runner.New(
		runner.WithFetcher(e.fetcher),
		runner.WithSelector(e.selector),
		runner.WithSink(e.sink),
		runner.WithRenderer(dom.Renderer{}),
		runner.WithLogger(e.logger),
	)
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
	e.closers = nil
}

func runFile(ctx context.Context, r *runner.Runner, filename string, keepGoing bool, rep *reporter) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	return runSource(ctx, r, string(content), filename, keepGoing, rep)
}

// runSource parses and runs a whole program, reporting every failure.
func runSource(ctx context.Context, r *runner.Runner, source, filename string, keepGoing bool, rep *reporter) error {
	program, err := parser.ParseFile(source, filename)
	if err != nil {
		rep.report(err, source, filename)
		return errReported
	}

	errs := r.RunProgram(ctx, program, keepGoing)
	for _, err := range errs {
		rep.report(err, source, filename)
	}
	if len(errs) > 0 {
		return errReported
	}
	return nil
}

// checkFiles parses and checks files without running them
func checkFiles(files []string, rep *reporter) error {
	hasErrors := false

	for _, filename := range files {
		content, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("reading %s: %w", filename, err)
		}
		source := string(content)

		program, err := parser.ParseFile(source, filename)
		if err != nil {
			rep.report(err, source, filename)
			hasErrors = true
			continue
		}
		for _, err := range checker.CheckProgram(program) {
			rep.report(err, source, filename)
			hasErrors = true
		}
	}

	if hasErrors {
		return errReported
	}
	return nil
}

// reporter prints diagnostics to stderr, either for people or as one JSON
// object per line.
type reporter struct {
	w    io.Writer
	json bool
}

func (r *reporter) report(err error, source, filename string) {
	se, ok := qlerrors.As(err)
	if !ok {
		if r.json {
			se = &qlerrors.ScrapeError{Message: err.Error(), File: filename}
		} else {
			fmt.Fprintf(r.w, "error: %v\n", err)
			return
		}
	}
	if se.File == "" && filename != "" {
		se = se.WithFile(filename)
	}

	if r.json {
		data, jerr := se.ToJSON()
		if jerr != nil {
			fmt.Fprintf(r.w, "error: %v\n", err)
			return
		}
		fmt.Fprintf(r.w, "%s\n", data)
		return
	}

	fmt.Fprintln(r.w, se.PrettyString())
	io.WriteString(r.w, se.SourceContext(source))
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `scrapeql - query and extract HTML documents

Usage:
  scrapeql [options] [FILE]
  scrapeql --check FILE...

With no FILE and no --eval, scrapeql starts an interactive shell.

Options:
  --config PATH        Path to config file (default: auto-detect)
  -i, --input FILE     Run statements from FILE
  -e, --eval CODE      Run CODE
  --check              Parse and check files without running them
  --keep-going         Continue after a failing statement
  --watch              Re-run the input file whenever it is written
  --json               Print errors as JSON, one per line
  -d, --debug          Debug logging
  -V, --version        Show version
  -h, --help           Show this help

Config Resolution:
  1. --config flag
  2. SCRAPEQL_CONFIG environment variable
  3. ./scrapeql.yaml
  4. ~/.config/scrapeql/scrapeql.yaml

Exit Status:
  0  success
  1  a statement failed to parse, check or run
  2  usage, config or file error

Examples:
  scrapeql jobs.sql
  scrapeql -e 'LOAD "https://example.com" AS doc WRITE doc TO "-"'
  scrapeql --watch jobs.sql
  scrapeql --check *.sql

`)
}
