package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/iso3dfd-st7/autotune/internal/improvement"
	"github.com/iso3dfd-st7/autotune/internal/results"
	"github.com/iso3dfd-st7/autotune/pkg/models"
	"github.com/iso3dfd-st7/autotune/pkg/utils"
)

func runResults(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("results", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file (defaults when empty)")
	backend := fs.String("backend", "", "results backend: file or sqlite")
	list := fs.Bool("list", false, "list stored trial ids")
	compare := fs.Bool("compare", false, "compare the given trials")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: autotune results [flags] id [id ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *backend != "" {
		cfg.Results.Backend = *backend
	}
	store, err := results.NewStore(cfg.Results)
	if err != nil {
		return err
	}
	defer store.Close()

	if *list {
		ids, err := store.List(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(stdout, id)
		}
		return nil
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("at least one trial id is required")
	}
	return printResults(ctx, store, fs.Args(), *compare, stdout)
}

// normalizeTrialID lets file-store ids be given without leading zeros
func normalizeTrialID(id string) string {
	if n, err := utils.ParseTrialID(id); err == nil {
		return utils.FormatTrialID(n)
	}
	return id
}

func printResults(ctx context.Context, store results.Store, ids []string, compare bool, stdout io.Writer) error {
	loaded := make([]*models.Result, 0, len(ids))
	for i, raw := range ids {
		id := raw
		if _, isFile := store.(*results.FileStore); isFile {
			id = normalizeTrialID(raw)
		}
		res, err := store.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("trial %s: %w", raw, err)
		}
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		if err := results.Summary(stdout, id, res); err != nil {
			return err
		}
		loaded = append(loaded, res)
	}

	if !compare || len(loaded) < 2 {
		return nil
	}
	fmt.Fprintln(stdout)
	for i := 1; i < len(loaded); i++ {
		cmp, err := improvement.CompareResults(loaded[0], loaded[i])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s vs %s: %+.2f%%%s\n", ids[0], ids[i], cmp.ImprovementPct, significance(cmp))
	}
	return printHistory(stdout, loaded)
}

func significance(cmp *improvement.ResultComparison) string {
	if improvement.IsSignificantImprovement(cmp, 5) {
		return " (significant)"
	}
	return ""
}
