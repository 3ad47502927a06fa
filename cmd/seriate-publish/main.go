// Command seriate-publish splits a document and posts it to the ledger
// as a threaded series
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"seriate/internal/adapters/ledger"
	"seriate/internal/core/hashing"
	"seriate/internal/core/splitter"
	"seriate/internal/core/version"
	"seriate/internal/platform/config"
	"seriate/internal/platform/logger"
	"seriate/internal/platform/store"
	pstr "seriate/internal/platform/strings"
	"seriate/internal/services/manifest"
	pipedom "seriate/internal/services/pipeline/domain"
	piperepo "seriate/internal/services/pipeline/repo"
	pipesvc "seriate/internal/services/pipeline/service"
)

// progressPrinter writes human readable progress to stderr
type progressPrinter struct{}

func (progressPrinter) OnProgress(p pipedom.Progress) {
	if p.Part > 0 {
		fmt.Fprintf(os.Stderr, "[%s] part %d/%d %s\n", p.Phase, p.Part, p.TotalParts, p.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] %s\n", p.Phase, p.Message)
}

func main() {
	cfg := config.New().Prefix("SERIATE_")
	l := logger.Get()

	var (
		file      = flag.String("file", "", "document to publish (required)")
		title     = flag.String("title", "", "series title (required)")
		author    = flag.String("author", cfg.MayString("AUTHOR", ""), "posting identity")
		endpoints = flag.String("endpoints", cfg.MayString("ENDPOINTS", ""), "comma separated ledger endpoints")
		dataDir   = flag.String("data-dir", cfg.MayString("DATA_DIR", "seriate-data"), "local storage directory")
		tagsCSV   = flag.String("tags", "", "comma separated extra tags")
		source    = flag.String("source", "", "source URL recorded in the manifest")
		dryRun    = flag.Bool("dry-run", false, "split and build the manifest but post nothing")
		showVer   = flag.Bool("version", false, "print build info and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("seriate-publish", version.Info())
		return
	}

	if *file == "" || *title == "" {
		log.Fatal("-file and -title are required")
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}

	parts, err := splitter.Split(string(raw), *title)
	if err != nil {
		log.Fatalf("split: %v", err)
	}
	contents := make([]string, len(parts))
	for i, p := range parts {
		contents[i] = p.Content
	}
	perPart, full := hashing.SumSeries(contents)

	m, err := manifest.New(manifest.Params{
		Title:      *title,
		SourceURL:  pstr.EmptyToNil(*source),
		TotalParts: len(parts),
		FullHash:   full,
		PartHashes: perPart,
		Tags:       pstr.CSV(*tagsCSV),
	})
	if err != nil {
		log.Fatalf("manifest: %v", err)
	}

	fmt.Fprintf(os.Stderr, "series %s: %d parts from %d bytes\n", m.SeriesID, len(parts), len(raw))
	for _, p := range parts {
		fmt.Fprintf(os.Stderr, "  part %d: %d bytes, %d words, %s boundary\n", p.Number, p.ByteSize, p.WordCount, p.Boundary)
	}
	if *dryRun {
		return
	}

	if *author == "" || *endpoints == "" {
		log.Fatal("-author and -endpoints are required to post")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithSeries(ctx, m.SeriesID)
	l = logger.C(ctx)

	st, err := store.Open(ctx, store.Config{Dir: *dataDir})
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	client, err := ledger.NewClient(ledger.Options{
		Endpoints: pstr.CSV(*endpoints),
	})
	if err != nil {
		l.Fatal().Err(err).Msg("ledger client failed")
	}

	pcfg := pipesvc.DefaultConfig()
	pcfg.Author = *author
	svc, err := pipesvc.New(pcfg, pipesvc.Deps{
		Transport: client,
		Storage:   piperepo.New(st),
		Observer:  progressPrinter{},
		Log:       l,
	}, m, parts)
	if err != nil {
		l.Fatal().Err(err).Msg("pipeline init failed")
	}

	if err := svc.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("pipeline run failed")
	}

	snap := svc.Snapshot()
	fmt.Fprintf(os.Stderr, "series %s finished %s: %d posted, %d pending\n",
		m.SeriesID, snap.Status, snap.Posted, snap.Pending)
	if snap.Status != pipedom.StatusCompleted {
		os.Exit(1)
	}
}
