// Command seriate-resume lists interrupted series and picks one back up
// at its preserved pointer
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
		series    = flag.String("series", "", "series id to resume; empty lists resumable series")
		author    = flag.String("author", cfg.MayString("AUTHOR", ""), "posting identity")
		endpoints = flag.String("endpoints", cfg.MayString("ENDPOINTS", ""), "comma separated ledger endpoints")
		dataDir   = flag.String("data-dir", cfg.MayString("DATA_DIR", "seriate-data"), "local storage directory")
		discover  = flag.Bool("discover", false, "list series found on the ledger instead of local state")
		limit     = flag.Int("limit", 100, "max entries returned by -discover")
		showVer   = flag.Bool("version", false, "print build info and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("seriate-resume", version.Info())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *discover {
		if *endpoints == "" {
			log.Fatal("-endpoints is required with -discover")
		}
		client, err := ledger.NewClient(ledger.Options{Endpoints: pstr.CSV(*endpoints)})
		if err != nil {
			l.Fatal().Err(err).Msg("ledger client failed")
		}
		tag := manifest.IdentityTag
		if *series != "" {
			// narrow the scan to the series' bucket
			tag = manifest.BucketTag(*series)
		}
		items, err := client.QueryByTag(ctx, tag, *limit)
		if err != nil {
			l.Fatal().Err(err).Str("tag", tag).Msg("ledger query failed")
		}
		for _, it := range items {
			fmt.Printf("%s/%s  %s\n", it.Author, it.Locator, it.Title)
		}
		return
	}

	st, err := store.Open(ctx, store.Config{Dir: *dataDir})
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()
	repo := piperepo.New(st)

	if *series == "" {
		ids, err := repo.ListIncomplete(ctx)
		if err != nil {
			l.Fatal().Err(err).Msg("list failed")
		}
		if len(ids) == 0 {
			fmt.Println("nothing to resume")
			return
		}
		for _, id := range ids {
			pst, err := pipesvc.LoadPersisted(ctx, repo, id)
			if err != nil {
				l.Warn().Err(err).Str("series", id).Msg("unreadable state, skipping")
				continue
			}
			fmt.Printf("%s  %s  part %d  (%d errors, updated %s)\n",
				id, pst.Status, pst.Current, len(pst.Errors), pst.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return
	}

	if *author == "" || *endpoints == "" {
		log.Fatal("-author and -endpoints are required to resume")
	}
	ctx = logger.WithSeries(ctx, *series)
	l = logger.C(ctx)

	parts, m, err := repo.LoadParts(ctx, *series)
	if err != nil {
		l.Fatal().Err(err).Msg("no stored parts for series")
	}
	pst, err := pipesvc.LoadPersisted(ctx, repo, *series)
	if err != nil {
		l.Fatal().Err(err).Msg("no stored state for series")
	}

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
		Storage:   repo,
		Observer:  progressPrinter{},
		Log:       l,
	}, m, parts)
	if err != nil {
		l.Fatal().Err(err).Msg("pipeline init failed")
	}
	if err := svc.Restore(pst); err != nil {
		l.Fatal().Err(err).Msg("state restore failed")
	}

	if err := svc.Resume(ctx); err != nil {
		l.Fatal().Err(err).Msg("resume failed")
	}

	snap := svc.Snapshot()
	fmt.Fprintf(os.Stderr, "series %s finished %s: %d posted, %d pending\n",
		*series, snap.Status, snap.Posted, snap.Pending)
	if snap.Status != pipedom.StatusCompleted {
		os.Exit(1)
	}
}
