package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/analysis"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/cache"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/config"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/dashboard"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/database"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/dataset"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/filter"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

const version = "1.0.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("vprctl failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	dataDir := &cli.StringFlag{
		Name:    "data-dir",
		Usage:   "directory holding vpr.db",
		Value:   "./data",
		EnvVars: []string{"DATA_DIR"},
	}

	offline := &cli.BoolFlag{
		Name:  "offline",
		Usage: "load the whole dataset once and filter it in memory instead of querying per filter",
	}

	filterFlags := []cli.Flag{
		dataDir,
		offline,
		&cli.StringFlag{Name: "year", Value: filter.All},
		&cli.StringFlag{Name: "grade", Value: filter.All},
		&cli.StringFlag{Name: "subject", Value: filter.All},
		&cli.StringFlag{Name: "municipality", Value: filter.All},
		&cli.StringFlag{Name: "school", Value: filter.All},
	}

	return &cli.App{
		Name:    "vprctl",
		Usage:   "seed and query the VPR analytics store",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "seed",
				Usage: "generate a synthetic dataset and store it as the current version",
				Flags: []cli.Flag{
					dataDir,
					&cli.StringFlag{Name: "config", Usage: "YAML file with a generator section"},
					&cli.Int64Flag{Name: "seed", Usage: "generator seed (overrides the config file)"},
					&cli.IntFlag{Name: "schools", Usage: "schools per municipality (overrides the config file)"},
				},
				Action: seedAction,
			},
			{
				Name:   "aggregate",
				Usage:  "print one aggregation of the current dataset as JSON",
				Flags:  append(filterFlags, &cli.StringFlag{Name: "kind", Value: "dashboard", Usage: "marks, scores, bias or dashboard"}),
				Action: aggregateAction,
			},
			{
				Name:   "options",
				Usage:  "print the filter options for a municipality",
				Flags:  []cli.Flag{dataDir, offline, &cli.StringFlag{Name: "municipality", Value: filter.All}},
				Action: optionsAction,
			},
			{
				Name:   "validate",
				Usage:  "report data-quality issues; exits 2 when any are found",
				Flags:  []cli.Flag{dataDir},
				Action: validateAction,
			},
		},
	}
}

func seedAction(c *cli.Context) error {
	gen := dataset.DefaultGeneratorConfig()
	if path := c.String("config"); path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		gen = cfg.Generator
	}
	if c.IsSet("seed") {
		gen.Seed = c.Int64("seed")
	}
	if c.IsSet("schools") {
		gen.SchoolsPerMunicipality = c.Int("schools")
	}

	db, err := database.NewDB(c.String("data-dir"))
	if err != nil {
		return err
	}
	defer db.Close()

	info, err := database.NewRepository(db).ReplaceAll(c.Context, dataset.Generate(gen))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, info)
}

// openService opens the store and selects its latest dataset
func openService(ctx context.Context, dataDir string) (*dashboard.Service, func(), error) {
	db, err := database.NewDB(dataDir)
	if err != nil {
		return nil, nil, err
	}

	repo := database.NewRepository(db)
	if _, err := repo.LatestDataset(ctx); err != nil {
		db.Close()
		if errors.Is(err, database.ErrNoDataset) {
			return nil, nil, cli.Exit("no dataset stored, run `vprctl seed` first", 1)
		}
		return nil, nil, err
	}

	memo := cache.NewMemo(time.Minute)
	closer := func() {
		memo.Close()
		db.Close()
	}
	return dashboard.NewService(repo, memo, nil, nil, nil), closer, nil
}

// loadSnapshot reads every record of the latest dataset into memory
func loadSnapshot(ctx context.Context, dataDir string) (*dataset.Dataset, error) {
	db, err := database.NewDB(dataDir)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	repo := database.NewRepository(db)
	if _, err := repo.LatestDataset(ctx); err != nil {
		if errors.Is(err, database.ErrNoDataset) {
			return nil, cli.Exit("no dataset stored, run `vprctl seed` first", 1)
		}
		return nil, err
	}
	return repo.Snapshot(ctx)
}

// aggregateSnapshot computes one aggregation from an in-memory dataset
func aggregateSnapshot(ds *dataset.Dataset, kind string, state types.FilterState) (interface{}, error) {
	f := filter.FromState(state)
	switch kind {
	case "marks":
		return analysis.AggregateMarks(filter.ApplyMarks(ds.Marks, f)), nil
	case "scores":
		return analysis.AggregateScores(filter.ApplyScores(ds.Scores, f)), nil
	case "bias":
		return analysis.PassThroughBias(filter.ApplyBias(ds.Bias, f)), nil
	case "dashboard":
		marks := filter.ApplyMarks(ds.Marks, f)
		return &types.Dashboard{
			Filters: f.State(),
			Marks:   analysis.AggregateMarks(marks),
			Scores:  analysis.AggregateScores(filter.ApplyScores(ds.Scores, f)),
			Bias:    analysis.PassThroughBias(filter.ApplyBias(ds.Bias, f)),
			Records: len(marks),
		}, nil
	default:
		return nil, cli.Exit(fmt.Sprintf("unknown kind %q", kind), 1)
	}
}

func filterState(c *cli.Context) types.FilterState {
	return types.FilterState{
		Year:         c.String("year"),
		Grade:        c.String("grade"),
		Subject:      c.String("subject"),
		Municipality: c.String("municipality"),
		School:       c.String("school"),
	}
}

func aggregateAction(c *cli.Context) error {
	if c.Bool("offline") {
		ds, err := loadSnapshot(c.Context, c.String("data-dir"))
		if err != nil {
			return err
		}
		out, err := aggregateSnapshot(ds, c.String("kind"), filterState(c))
		if err != nil {
			return err
		}
		return writeJSON(c.App.Writer, out)
	}

	svc, closer, err := openService(c.Context, c.String("data-dir"))
	if err != nil {
		return err
	}
	defer closer()

	state := filterState(c)
	f := filter.FromState(state)

	var out interface{}
	switch kind := c.String("kind"); kind {
	case "marks":
		out, err = svc.Marks(c.Context, f)
	case "scores":
		out, err = svc.Scores(c.Context, f)
	case "bias":
		out, err = svc.Bias(c.Context, f)
	case "dashboard":
		out, err = svc.Dashboard(c.Context, state)
	default:
		return cli.Exit(fmt.Sprintf("unknown kind %q", kind), 1)
	}
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, out)
}

func optionsAction(c *cli.Context) error {
	if c.Bool("offline") {
		ds, err := loadSnapshot(c.Context, c.String("data-dir"))
		if err != nil {
			return err
		}
		return writeJSON(c.App.Writer, filter.BuildOptions(ds.Marks, c.String("municipality")))
	}

	svc, closer, err := openService(c.Context, c.String("data-dir"))
	if err != nil {
		return err
	}
	defer closer()

	opts, err := svc.Options(c.Context, c.String("municipality"))
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, opts)
}

func validateAction(c *cli.Context) error {
	svc, closer, err := openService(c.Context, c.String("data-dir"))
	if err != nil {
		return err
	}
	defer closer()

	issues, err := svc.Validation(c.Context)
	if err != nil {
		return err
	}
	if err := writeJSON(c.App.Writer, issues); err != nil {
		return err
	}
	if len(issues) > 0 {
		return cli.Exit(fmt.Sprintf("%d issue(s) found", len(issues)), 2)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
