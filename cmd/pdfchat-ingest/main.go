// Command pdfchat-ingest indexes PDFs from disk using the server's configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/app"
	"github.com/kailas-cloud/pdfchat/internal/config"
	logpkg "github.com/kailas-cloud/pdfchat/internal/logger"
	"github.com/kailas-cloud/pdfchat/internal/metrics"
	ingestuc "github.com/kailas-cloud/pdfchat/internal/usecase/ingest"
	"github.com/kailas-cloud/pdfchat/internal/version"
)

func main() {
	dir := flag.String("dir", "", "ingest every *.pdf in this directory")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-dir DIR] [file.pdf ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	paths, err := collectPaths(*dir, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(run(paths))
}

func run(paths []string) int {
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to assemble pipeline", zap.Error(err))
		return 1
	}
	defer a.Close()

	files := make([]ingestuc.File, 0, len(paths))
	failed := 0
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			fmt.Printf("FAIL  %s: %v\n", p, err)
			failed++
			continue
		}
		files = append(files, ingestuc.File{Name: filepath.Base(p), Data: data})
	}

	for i, res := range a.Ingest.IngestMany(ctx, files) {
		if res.Err != nil {
			fmt.Printf("FAIL  %s: %v\n", files[i].Name, res.Err)
			failed++
			continue
		}
		fmt.Printf("OK    %s: %d pages, %d chunks (replaced %d)\n", res.Name, res.Pages, res.Chunks, res.Replaced)
	}

	if failed > 0 {
		return 1
	}
	return 0
}

// collectPaths merges explicit arguments with the PDFs found in dir.
func collectPaths(dir string, args []string) ([]string, error) {
	paths := append([]string(nil), args...)
	if dir == "" {
		return paths, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
