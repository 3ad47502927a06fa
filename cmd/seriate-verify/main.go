// Command seriate-verify re-fetches a posted series and checks every
// part against the digests recorded in its manifest
package main

import (
	"context"
	"encoding/json"
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
	piperepo "seriate/internal/services/pipeline/repo"
	verifydom "seriate/internal/services/verify/domain"
	verifysvc "seriate/internal/services/verify/service"
)

func main() {
	cfg := config.New().Prefix("SERIATE_")
	l := logger.Get()

	var (
		series       = flag.String("series", "", "series id to verify (required unless -manifest)")
		manifestFile = flag.String("manifest", "", "verify a manifest JSON file instead of stored state")
		endpoints    = flag.String("endpoints", cfg.MayString("ENDPOINTS", ""), "comma separated ledger endpoints")
		dataDir      = flag.String("data-dir", cfg.MayString("DATA_DIR", "seriate-data"), "local storage directory")
		asJSON       = flag.Bool("json", false, "emit the report as JSON")
		showVer      = flag.Bool("version", false, "print build info and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("seriate-verify", version.Info())
		return
	}

	if *endpoints == "" {
		log.Fatal("-endpoints is required")
	}
	if *series == "" && *manifestFile == "" {
		log.Fatal("one of -series or -manifest is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *manifest.Manifest
	switch {
	case *manifestFile != "":
		raw, err := os.ReadFile(*manifestFile)
		if err != nil {
			log.Fatalf("read %s: %v", *manifestFile, err)
		}
		m, err = manifest.DecodeStored(raw)
		if err != nil {
			log.Fatalf("decode manifest: %v", err)
		}
	default:
		st, err := store.Open(ctx, store.Config{Dir: *dataDir})
		if err != nil {
			l.Fatal().Err(err).Msg("store.Open failed")
		}
		defer func() {
			if err := st.Close(context.Background()); err != nil {
				l.Error().Err(err).Msg("failed to close store")
			}
		}()
		_, m, err = piperepo.New(st).LoadParts(ctx, *series)
		if err != nil {
			l.Fatal().Err(err).Str("series", *series).Msg("no stored manifest for series")
		}
	}

	ctx = logger.WithSeries(ctx, m.SeriesID)
	l = logger.C(ctx)

	client, err := ledger.NewClient(ledger.Options{
		Endpoints: pstr.CSV(*endpoints),
	})
	if err != nil {
		l.Fatal().Err(err).Msg("ledger client failed")
	}

	svc, err := verifysvc.New(client, l)
	if err != nil {
		l.Fatal().Err(err).Msg("verifier init failed")
	}

	report, err := svc.Verify(ctx, m, func(c verifydom.PartCheck) {
		if !*asJSON {
			line := fmt.Sprintf("part %d: %s", c.Part, c.Outcome)
			if c.Reason != "" {
				line += " (" + c.Reason + ")"
			}
			fmt.Fprintln(os.Stderr, line)
		}
	})
	if err != nil {
		l.Fatal().Err(err).Msg("verify failed")
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			l.Fatal().Err(err).Msg("encode report failed")
		}
	} else {
		fmt.Printf("series %s: %d verified, %d failed, %d missing\n",
			report.SeriesID, len(report.Verified), len(report.Failed), len(report.Missing))
	}
	if !report.Clean() {
		os.Exit(1)
	}
}
