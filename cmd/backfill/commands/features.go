package commands

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/fortuna/diamond/internal/export"
	"github.com/fortuna/diamond/internal/features"
	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/store/repository"
	"github.com/fortuna/diamond/internal/table"
)

var featureOpts struct {
	season int
	teams  string
	games  string
	out    string
	save   bool
}

func init() {
	f := featuresCmd.Flags()
	f.IntVar(&featureOpts.season, "season", 0, "derive from the season stored in the database")
	f.StringVar(&featureOpts.teams, "teams", "", "derive from a teams.csv written by scrape or parse")
	f.StringVar(&featureOpts.games, "games", "", "optional games.csv supplying GameDate")
	f.StringVar(&featureOpts.out, "out", "", "CSV file to write (default stdout)")
	f.BoolVar(&featureOpts.save, "save", false, "replace the season's stored feature rows (requires --season)")
	rootCmd.AddCommand(featuresCmd)
}

var featuresCmd = &cobra.Command{
	Use:   "features (--season <year> | --teams <teams.csv> [--games <games.csv>]) [--out <file>]",
	Short: "Derives lagged pre-game features from stored or exported team rows.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if (featureOpts.season > 0) == (featureOpts.teams != "") {
			return errors.New("give exactly one of --season or --teams")
		}
		if featureOpts.save && featureOpts.season == 0 {
			return errors.New("--save requires --season")
		}

		var games, teams *table.Table
		var repo *repository.FeatureRepository
		if featureOpts.season > 0 {
			db, err := store.NewDatabase(cfg.AtlasDSN, log)
			if err != nil {
				return errors.Wrap(err, "connect atlas")
			}
			defer db.Close()
			games, teams, err = repository.NewCorpusRepository(db).LoadSeason(ctx, featureOpts.season)
			if err != nil {
				return err
			}
			repo = repository.NewFeatureRepository(db)
		} else {
			var err error
			if teams, err = readCSV(featureOpts.teams); err != nil {
				return err
			}
			if featureOpts.games != "" {
				if games, err = readCSV(featureOpts.games); err != nil {
					return err
				}
			}
		}

		out, err := features.Derive(teams, games)
		if err != nil {
			return err
		}
		log.Info("features derived", "rows", out.Len(), "columns", out.Width())

		if featureOpts.save {
			n, err := repo.ReplaceSeason(ctx, featureOpts.season, out)
			if err != nil {
				return err
			}
			log.Info("features stored", "season", featureOpts.season, "rows", n)
		}

		if featureOpts.out == "" {
			return export.WriteCSV(os.Stdout, out)
		}
		return export.WriteCSVFile(featureOpts.out, out)
	},
}

func readCSV(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	t, err := export.ReadCSV(f)
	return t, errors.Wrapf(err, "read %s", path)
}
