// Command hyrecsv converts question documents into question-bank import
// tables.
//
//	hyrecsv [flags] file-or-dir...
//	hyrecsv -expand-breaks file.csv...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	hyrecsv "github.com/ebinesh25/gen-hyre-csv"
	"github.com/ebinesh25/gen-hyre-csv/table"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath   string
	outDir       string
	format       string
	schema       string
	categoryFile bool
	category     string
	mediaDir     string
	mediaBaseURL string
	dbDSN        string
	dbDriver     string
	workers      int
	force        bool
	verbose      bool
	expandBreaks bool
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	fs := flag.NewFlagSet("hyrecsv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: hyrecsv [flags] file-or-dir...")
		fs.PrintDefaults()
	}

	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Path to config file (YAML)")
	fs.StringVar(&o.outDir, "out", "", "Output directory (default: next to each input)")
	fs.StringVar(&o.format, "format", "", "Output format: csv or xlsx")
	fs.StringVar(&o.schema, "schema", "", "Table schema: legacy or variable")
	fs.BoolVar(&o.categoryFile, "category-from-filename", false, "Derive category and tags from each file name")
	fs.StringVar(&o.category, "category", "", "Category (and tags) for every record")
	fs.StringVar(&o.mediaDir, "media-dir", "", "Store inline images in this directory")
	fs.StringVar(&o.mediaBaseURL, "media-base-url", "", "Public URL prefix for stored images")
	fs.StringVar(&o.dbDSN, "db", "", "Question-bank database (SQLite path or postgres:// URL)")
	fs.StringVar(&o.dbDriver, "db-driver", "", "Database driver: sqlite or postgres (default: from -db)")
	fs.IntVar(&o.workers, "workers", 0, "Documents converted in parallel")
	fs.BoolVar(&o.force, "force", false, "Re-parse documents even if unchanged since the last run")
	fs.BoolVar(&o.verbose, "verbose", false, "Debug logging")
	fs.BoolVar(&o.expandBreaks, "expand-breaks", false, "Rewrite existing CSVs with real line breaks in explanations")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, nil, errors.New("no input files")
	}
	return o, fs.Args(), nil
}

// config merges the config file, environment and flags, in that order.
func (o *options) config() (hyrecsv.Config, error) {
	cfg := hyrecsv.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = hyrecsv.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv(os.Getenv)

	if o.format != "" {
		cfg.Format = o.format
	}
	if o.schema != "" {
		cfg.Schema = o.schema
	}
	if o.categoryFile {
		cfg.CategoryFromFilename = true
	}
	if o.mediaDir != "" {
		cfg.Media.Dir = o.mediaDir
	}
	if o.mediaBaseURL != "" {
		cfg.Media.BaseURL = o.mediaBaseURL
	}
	if o.dbDSN != "" {
		cfg.DB.DSN = o.dbDSN
		if o.dbDriver == "" && (strings.HasPrefix(o.dbDSN, "postgres://") || strings.HasPrefix(o.dbDSN, "postgresql://")) {
			cfg.DB.Driver = "postgres"
		}
	}
	if o.dbDriver != "" {
		cfg.DB.Driver = o.dbDriver
	}
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, inputs, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := o.config()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return 2
	}

	if o.expandBreaks {
		return expandBreaks(inputs, cfg.BreakToken, stdout)
	}

	files, err := hyrecsv.InputFiles(inputs, nil)
	if err != nil {
		slog.Error("collecting inputs", "error", err)
		return 1
	}
	if len(files) == 0 {
		slog.Error("no supported documents found", "inputs", inputs)
		return 1
	}

	conv, err := hyrecsv.New(cfg)
	if err != nil {
		slog.Error("creating converter", "error", err)
		return 1
	}
	defer conv.Close()

	var convOpts []hyrecsv.ConvertOption
	if o.category != "" {
		convOpts = append(convOpts, hyrecsv.WithCategory(o.category))
	}
	if o.force {
		convOpts = append(convOpts, hyrecsv.WithForceReparse())
	}

	if o.outDir != "" {
		if err := os.MkdirAll(o.outDir, 0o755); err != nil {
			slog.Error("creating output directory", "dir", o.outDir, "error", err)
			return 1
		}
	}

	failed := 0
	for _, br := range conv.ConvertBatch(ctx, files, convOpts...) {
		if br.Err != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL  %s: %v\n", br.Path, br.Err)
			continue
		}
		out, err := writeOutput(conv, br, o.outDir, cfg.Format)
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL  %s: %v\n", br.Path, err)
			continue
		}
		reportResult(stdout, br.Result, out)
	}

	fmt.Fprintf(stdout, "%d of %d documents converted\n", len(files)-failed, len(files))
	if failed > 0 {
		return 1
	}
	return 0
}

func writeOutput(conv hyrecsv.Converter, br hyrecsv.BatchResult, outDir, format string) (string, error) {
	dir := outDir
	if dir == "" {
		dir = filepath.Dir(br.Path)
	}
	path := filepath.Join(dir, hyrecsv.OutputName(br.Path, format))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := conv.WriteTable(f, br.Result.Records, format); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, f.Close()
}

func reportResult(w io.Writer, res *hyrecsv.Result, out string) {
	status := "OK   "
	if res.Skipped {
		status = "SAME "
	}
	fmt.Fprintf(w, "%s %s -> %s (%d questions", status, res.Path, out, len(res.Records))
	if flagged := len(res.Flagged()); flagged > 0 {
		fmt.Fprintf(w, ", %d need review", flagged)
	}
	fmt.Fprintln(w, ")")

	for _, d := range res.Diagnostics {
		slog.Warn("diagnostic", "file", filepath.Base(res.Path), "kind", d.Kind.String(),
			"question", d.Number, "line", d.Line, "message", d.Message)
	}
}

func expandBreaks(paths []string, token string, stdout io.Writer) int {
	failed := 0
	for _, p := range paths {
		n, err := table.ExpandBreaksFile(p, token)
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL  %s: %v\n", p, err)
			continue
		}
		fmt.Fprintf(stdout, "OK    %s (%d rows updated)\n", p, n)
	}
	if failed > 0 {
		return 1
	}
	return 0
}
