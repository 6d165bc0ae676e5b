package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raaihank/pdn-sentinel/internal/config"
	"github.com/raaihank/pdn-sentinel/internal/document"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/report"
	"github.com/raaihank/pdn-sentinel/internal/service"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

// errVerdict makes the process exit with status 2: the document was
// blocked, or findings were reported with --fail-on-findings
var errVerdict = errors.New("document did not pass")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		// a second signal terminates immediately
		<-ctx.Done()
		stop()
	}()

	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errVerdict):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the global flags and the terminal streams
type app struct {
	configPath string
	profile    string
	rulesFile  string
	outputDir  string
	format     string
	logLevel   string

	in          *bufio.Reader
	out         io.Writer
	errOut      io.Writer
	interactive func() bool

	loader *config.Loader
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		in:     bufio.NewReader(in),
		out:    out,
		errOut: errOut,
		interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Detect and redact confidential information in documents",
		Long: "pdn-sentinel finds personal data and other confidential information in text,\n" +
			"lets you erase, mask or keep each flagged sentence, and blocks documents\n" +
			"that still carry unresolved findings.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&a.profile, "profile", "", "Rule pack: confidential or pdn")
	flags.StringVar(&a.rulesFile, "rules", "", "YAML file with custom categories")
	flags.StringVarP(&a.outputDir, "output-dir", "o", "", "Directory for processed documents")
	flags.StringVarP(&a.format, "format", "f", "", "Report format: text or json")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, or error")

	root.AddCommand(
		newScanCmd(a),
		newAnonymizeCmd(a),
		newProcessCmd(a),
		newCategoriesCmd(a),
		newServeCmd(a),
		newHealthCmd(),
	)
	return root
}

// applyOverrides copies the global flags over a loaded configuration
func (a *app) applyOverrides(cfg *config.Config) error {
	if a.profile != "" {
		cfg.Scanner.Profile = a.profile
	}
	if a.rulesFile != "" {
		cfg.Scanner.RulesFile = a.rulesFile
	}
	if a.outputDir != "" {
		cfg.Output.Dir = a.outputDir
	}
	if a.format != "" {
		if a.format != "text" && a.format != "json" {
			return fmt.Errorf("invalid format: %s (must be text or json)", a.format)
		}
		cfg.Output.Format = a.format
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	// stdout carries reports and prompts
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	return nil
}

// setup loads configuration, the logger and the services
func (a *app) setup(ctx context.Context) (*config.Config, *logger.Logger, *service.Services, error) {
	a.loader = config.NewLoader()
	cfg, err := a.loader.Load(a.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := a.applyOverrides(cfg); err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	svc, err := service.New(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, svc, nil
}

// readDocument takes the text from a file argument, --text, or stdin
func (a *app) readDocument(args []string, text string) (*document.Document, error) {
	switch {
	case len(args) > 0:
		return document.Load(args[0])
	case text != "":
		return document.FromText(text)
	}

	if !a.interactive() {
		data, err := io.ReadAll(a.in)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return document.FromText(string(data))
	}

	fmt.Fprintln(a.out, "Enter the text, finish with an empty line:")
	var lines []string
	for {
		line, err := a.in.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" && (err != nil || len(lines) > 0) {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
		if err != nil {
			break
		}
	}
	return document.FromText(strings.Join(lines, "\n"))
}

// writeReport prints the report in the configured format
func (a *app) writeReport(r *report.Report, format string) error {
	if format == "json" {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return report.Render(a.out, r)
}
