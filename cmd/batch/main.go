package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/platecount/internal/batch"
	"github.com/okian/platecount/internal/config"
	"github.com/okian/platecount/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	defaults := config.New(context.Background())

	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	var (
		inputDir  = fs.String("input", batch.DefaultInputDir, "Directory to process")
		outputDir = fs.String("output", batch.DefaultOutputDir, "Directory for annotated outputs and the log")
		logFile   = fs.String("log", batch.DefaultLogFile, "Vehicle log file name")
		modelPath = fs.String("model", defaults.ModelPath, "Detection model path")
		ocrLang   = fs.String("ocr-lang", defaults.OCRLanguage, "OCR language")
		detector  = fs.String("detector", "", "URL of an HTTP plate detector")
		threshold = fs.Float64("threshold", defaults.SimilarityThreshold, "Plate similarity threshold")
		merge     = fs.Bool("merge-unreadable", defaults.MergeUnreadable, "Count all unreadable plates of a file as one vehicle")
		baseURL   = fs.String("url", "", "Upload to a running service instead of processing locally")
		workers   = fs.Int("workers", batch.DefaultWorkers, "Concurrent uploads in -url mode")
		timeout   = fs.Duration("timeout", batch.DefaultTimeout, "HTTP request timeout in -url mode")
		verbose   = fs.Bool("verbose", false, "Enable verbose logging")
		help      = fs.Bool("help", false, "Show help")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		batch.ShowHelp()
		return 0
	}

	if err := batch.SetupLogging(os.Stderr, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &batch.Config{
		InputDir:            *inputDir,
		OutputDir:           *outputDir,
		LogFile:             *logFile,
		ModelPath:           *modelPath,
		OCRLanguage:         *ocrLang,
		DetectorURL:         *detector,
		DetectorTimeout:     defaults.DetectorTimeout,
		SimilarityThreshold: *threshold,
		MergeUnreadable:     *merge,
		BaseURL:             *baseURL,
		Workers:             *workers,
		Timeout:             *timeout,
		PollInterval:        batch.DefaultPollInterval,
		Verbose:             *verbose,
	}

	os.Stdout.WriteString("[START] Processing videos and images...\n")
	summary, err := batch.Run(ctx, cfg)
	if summary != nil {
		summary.Print(os.Stdout)
	}
	if err != nil {
		logger.Get().Error(ctx, "batch failed", logger.Error(err))
		return 1
	}
	if summary.Failed() > 0 {
		return 1
	}
	return 0
}
