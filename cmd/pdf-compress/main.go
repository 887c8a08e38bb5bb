// Command pdf-compress shrinks scanned PDF files from the command line.
//
// Image-only pages are re-rendered as JPEG at the chosen resolution and
// quality; pages with text are copied unchanged.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/a3tai/mcp-pdf-tools/internal/config"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/raster"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNoSaving = 3
)

const outputPerm = 0o644

type options struct {
	dpi        float64
	quality    float64
	targetSize int64
	iterations int
	qualityMin float64
	qualityMax float64
	output     string
	outputDir  string
	suffix     string
	verbose    bool
}

func main() {
	// A missing .env file is fine; it only supplies defaults.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("pdf-compress", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.Float64Var(&opts.dpi, "dpi", config.DefaultDPI, "Resolution for re-rendered image pages")
	fs.Float64Var(&opts.quality, "quality", config.DefaultQuality, "JPEG quality between 0 and 1")
	fs.Int64Var(&opts.targetSize, "target-size", 0, "Search for the quality closest to this size in bytes")
	fs.IntVar(&opts.iterations, "iterations", config.DefaultIterations, "Search steps used with --target-size")
	fs.Float64Var(&opts.qualityMin, "qmin", config.DefaultQualityMin, "Lowest quality tried by the search")
	fs.Float64Var(&opts.qualityMax, "qmax", config.DefaultQualityMax, "Highest quality tried by the search")
	fs.StringVarP(&opts.output, "output", "o", "", "Output file (only with a single input)")
	fs.StringVar(&opts.outputDir, "outdir", os.Getenv(config.EnvPrefix+"_OUTDIR"), "Directory for output files")
	fs.StringVar(&opts.suffix, "suffix", config.DefaultOutputSuffix, "Suffix appended to derived output names")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Log each step")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pdf-compress [flags] FILE.pdf...\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	files := fs.Args()
	if len(files) == 0 {
		fs.Usage()
		return nil, nil, errors.New("no input files")
	}
	if opts.output != "" && len(files) > 1 {
		return nil, nil, errors.New("--output can only be used with a single input file")
	}
	return opts, files, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, files, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "pdf-compress: %v\n", err)
		return exitUsage
	}

	logger := log.New(io.Discard, "", 0)
	if opts.verbose {
		logger = log.New(stderr, "pdf-compress: ", log.Ltime)
	}

	c := &cli{
		opts:       opts,
		compressor: compress.NewCompressor(compress.WithLogger(logger)),
		printer:    message.NewPrinter(language.English),
		stdout:     stdout,
		stderr:     stderr,
		progress:   isTerminal(stderr),
	}

	code := exitOK
	for _, file := range files {
		if err := c.compressFile(ctx, file); err != nil {
			fmt.Fprintf(stderr, "pdf-compress: %s: %v\n", file, err)
			switch {
			case pdferrors.IsType(err, pdferrors.ErrorTypeNoSavings) && code == exitOK:
				code = exitNoSaving
			case !pdferrors.IsType(err, pdferrors.ErrorTypeNoSavings):
				code = exitFailure
			}
			if pdferrors.IsType(err, pdferrors.ErrorTypeCancelled) {
				return exitFailure
			}
		}
	}
	return code
}

type cli struct {
	opts       *options
	compressor *compress.Compressor
	printer    *message.Printer
	stdout     io.Writer
	stderr     io.Writer
	progress   bool
}

func (c *cli) compressFile(ctx context.Context, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeLoad, err)
	}

	output := c.opts.output
	if output == "" {
		output = compress.OutputPath(file, c.opts.outputDir, c.opts.suffix)
	}

	session := compress.NewSession(c.compressor)
	if c.progress {
		session.Observe(func(ch compress.StateChange) {
			fmt.Fprintf(c.stderr, "\r\033[K%s: %s", file, ch.To)
			if ch.To.Terminal() {
				fmt.Fprintln(c.stderr)
			}
		})
	}
	defer session.Reset()

	result, err := session.Run(ctx, data, c.job())
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, result.Data, outputPerm); err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeBuild, err)
	}

	c.printer.Fprintf(c.stdout, "%s -> %s: %d -> %d bytes (%.1f%% smaller, quality %.3f)\n",
		file, output, result.OriginalSize, result.CompressedSize, result.SavedPercent(), result.Quality)
	return nil
}

func (c *cli) job() compress.Job {
	job := compress.Job{
		Raster: raster.Options{DPI: c.opts.dpi, Quality: c.opts.quality},
	}
	if c.opts.targetSize > 0 {
		job.TargetSize = c.opts.targetSize
		job.Search = compress.SearchOptions{
			QualityMin: c.opts.qualityMin,
			QualityMax: c.opts.qualityMax,
			Iterations: c.opts.iterations,
		}
	}
	return job
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
