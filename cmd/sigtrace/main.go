package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/ohler55/ojg/oj"

	"github.com/linuxmatters/sigtrace/internal/archive"
	"github.com/linuxmatters/sigtrace/internal/cli"
	"github.com/linuxmatters/sigtrace/internal/mains"
	"github.com/linuxmatters/sigtrace/internal/methods"
	"github.com/linuxmatters/sigtrace/internal/results"
)

var (
	version = "0.1.0"
)

const debugLogName = "sigtrace-debug.log"

// Globals are flags shared by every command
type Globals struct {
	Verbose bool    `help:"Write diagnostics to stderr instead of ${debuglog}" env:"SIGTRACE_VERBOSE"`
	MainsHz float64 `name:"mains-hz" placeholder:"HZ" help:"Mains fundamental for hum measurement (0 detects it from the local timezone)" env:"SIGTRACE_MAINS_HZ"`
}

type versionFlag bool

// BeforeApply prints the version and exits before any command runs.
func (versionFlag) BeforeApply(app *kong.Kong) error {
	cli.PrintVersion(version)
	app.Exit(0)
	return nil
}

// CLI defines the command-line interface
type CLI struct {
	Globals

	Version versionFlag `short:"v" help:"Show version information"`

	Run     RunCmd     `cmd:"" help:"Analyse audio files with a protocol"`
	Methods MethodsCmd `cmd:"" help:"List registered analysis methods"`
	Inspect InspectCmd `cmd:"" help:"Query a results file with JSONPath"`
	History HistoryCmd `cmd:"" help:"List runs recorded in an archive"`
}

func main() {
	// A missing .env is not an error
	_ = godotenv.Load()

	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("sigtrace"),
		kong.Description("Forensic signal analysis for audio recordings"),
		kong.UsageOnError(),
		kong.Vars{
			"version":  version,
			"debuglog": debugLogName,
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	logger, closeLog := newLogger(cliArgs.Verbose, strings.HasPrefix(ctx.Command(), "run"))
	err := ctx.Run(&cliArgs.Globals, logger)
	closeLog()
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// newLogger writes debug diagnostics to stderr when verbose, otherwise to a debug
// log file for analysis runs. Other commands discard them.
func newLogger(verbose, toFile bool) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}
	}
	if !toFile {
		return slog.New(slog.DiscardHandler), func() {}
	}
	debugLog, err := os.Create(debugLogName)
	if err != nil {
		return slog.New(slog.DiscardHandler), func() {}
	}
	return slog.New(slog.NewTextHandler(debugLog, opts)), func() { debugLog.Close() }
}

// MethodsCmd lists the registry
type MethodsCmd struct{}

func (c *MethodsCmd) Run(g *Globals) error {
	reg, err := methods.NewRegistry(methods.Options{MainsHz: mains.Resolve(g.MainsHz).Hz})
	if err != nil {
		return err
	}
	cli.PrintMethods(os.Stdout, reg)
	return nil
}

// InspectCmd evaluates a JSONPath expression against a results file
type InspectCmd struct {
	Results string `arg:"" type:"existingfile" help:"results.json written by run"`
	Path    string `arg:"" name:"jsonpath" help:"JSONPath expression, e.g. '$.spectral.mains_hum.measurements'"`
}

func (c *InspectCmd) Run() error {
	return inspect(os.Stdout, c.Results, c.Path)
}

func inspect(w io.Writer, path, expression string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	values, err := results.Query(data, expression)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("no values match %s", expression)
	}
	for _, v := range values {
		fmt.Fprintln(w, oj.JSON(v, 2))
	}
	return nil
}

// HistoryCmd lists archived runs, or prints one archived record
type HistoryCmd struct {
	Database string `arg:"" type:"existingfile" help:"Archive database written by run --archive"`
	Limit    int    `short:"n" default:"20" help:"Maximum runs to list (0 lists all)"`
	Show     string `placeholder:"RUN-ID" help:"Print the archived record for this run"`
}

func (c *HistoryCmd) Run(logger *slog.Logger) error {
	arch, err := archive.Open(c.Database)
	if err != nil {
		return err
	}
	defer arch.Close()

	ctx := context.Background()
	if c.Show != "" {
		record, err := arch.Record(ctx, c.Show)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(record)
		return err
	}

	runs, err := arch.List(ctx, c.Limit)
	if err != nil {
		return err
	}
	logger.Debug("listed archived runs", "database", c.Database, "runs", len(runs))
	cli.PrintRuns(os.Stdout, runs)
	return nil
}
