// Command specmatch matches extracted line items against a reference
// catalogue and writes the classified results to SQLite and an XLSX report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"specmatch/internal/catalog"
	"specmatch/internal/config"
	"specmatch/internal/embedder"
	"specmatch/internal/matcher"
	"specmatch/internal/report"
	"specmatch/internal/storage"
	"specmatch/internal/vecindex"
	"specmatch/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		corpusPath  = flag.String("corpus", "", "reference catalogue file (.csv or .xlsx)")
		queriesPath = flag.String("queries", "", "query items file (.csv or .xlsx)")
		reportPath  = flag.String("report", "matches.xlsx", "output XLSX report path")
		envFile     = flag.String("env", ".env", "environment file with configuration")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("specmatch\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	log.SetOutput(os.Stderr)

	if *corpusPath == "" || *queriesPath == "" {
		flag.Usage()
		log.Fatal("both -corpus and -queries are required")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, cancelling run...", sig)
		cancel()
	}()

	if err := run(ctx, cfg, *corpusPath, *queriesPath, *reportPath); err != nil {
		log.Fatalf("Run failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, corpusPath, queriesPath, reportPath string) error {
	start := time.Now()
	log.Printf("specmatch v%s starting (build mode %s, driver %s)", version, storage.BuildMode, storage.DriverName)

	enc, err := embedder.New(embedder.Config{
		Provider:  cfg.Provider,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		BatchSize: cfg.EmbeddingBatch,
		Timeout:   cfg.EmbeddingTimeout,
	})
	if err != nil {
		return fmt.Errorf("create embedding provider: %w", err)
	}
	defer enc.Close()

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	items, err := catalog.Load(corpusPath)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	log.Printf("Loaded %d reference items from %s", len(items), corpusPath)

	if err := embedCorpus(ctx, store, enc, cfg, items); err != nil {
		return err
	}
	if err := store.SaveCorpus(ctx, items, enc.Provider(), cfg.Model); err != nil {
		return fmt.Errorf("persist corpus: %w", err)
	}

	index, err := vecindex.Build(ctx, items, vecindex.Options{
		QdrantAddr:      cfg.QdrantAddr,
		Collection:      cfg.Collection,
		ApproxThreshold: cfg.ApproxThreshold,
	})
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	defer index.Close()
	log.Printf("Vector index ready: %d vectors, backend %s", index.Len(), index.Backend())

	queries, err := catalog.LoadQueries(queriesPath)
	if err != nil {
		return fmt.Errorf("load queries: %w", err)
	}
	log.Printf("Loaded %d query items from %s", len(queries), queriesPath)

	cache := embedder.NewCache(cfg.CacheSize)
	m, err := matcher.New(enc, cache, index, items, matcher.Options{
		Weights:        cfg.Weights,
		MatchThreshold: cfg.MatchThreshold,
		ReviewFloor:    cfg.ReviewFloor,
		AmbiguityGap:   cfg.AmbiguityGap,
		TopK:           cfg.TopK,
		Workers:        cfg.Workers,
	})
	if err != nil {
		return fmt.Errorf("create matcher: %w", err)
	}

	results, err := m.MatchBatch(ctx, queries)
	if err != nil {
		return fmt.Errorf("match batch: %w", err)
	}

	if err := store.SaveResults(ctx, results); err != nil {
		return fmt.Errorf("persist results: %w", err)
	}
	if err := report.Write(reportPath, results); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	logSummary(results, time.Since(start), reportPath)
	return nil
}

// embedCorpus fills embeddings, reusing stored vectors for rows whose
// content has not changed since the last run with the same provider/model.
func embedCorpus(ctx context.Context, store *storage.Store, enc embedder.Embedder, cfg config.Config, items []types.ReferenceItem) error {
	cached, err := store.CachedVectors(ctx, enc.Provider(), cfg.Model)
	if err != nil {
		return fmt.Errorf("load cached vectors: %w", err)
	}

	var pending []types.ReferenceItem
	var pendingIdx []int
	reused := 0
	for i := range items {
		if vec, ok := cached[storage.HashItem(&items[i])]; ok {
			items[i].Embedding = vec
			reused++
			continue
		}
		pending = append(pending, items[i])
		pendingIdx = append(pendingIdx, i)
	}

	if len(pending) > 0 {
		if err := catalog.EmbedCorpus(ctx, enc, pending); err != nil {
			return err
		}
		for j, i := range pendingIdx {
			items[i].Embedding = pending[j].Embedding
		}
	}

	log.Printf("Corpus embeddings ready: %d reused, %d computed", reused, len(pending))
	return nil
}

func logSummary(results []types.MatchResult, elapsed time.Duration, reportPath string) {
	counts := make(map[types.MatchStatus]int)
	for _, res := range results {
		counts[res.Status]++
	}
	log.Printf("Matched %d queries in %s: %d MATCHED, %d AMBIGUOUS, %d MANUAL_REVIEW, %d NO_MATCH",
		len(results), elapsed.Round(time.Millisecond),
		counts[types.StatusMatched], counts[types.StatusAmbiguous],
		counts[types.StatusManualReview], counts[types.StatusNoMatch])
	log.Printf("Report written to %s", reportPath)
}
