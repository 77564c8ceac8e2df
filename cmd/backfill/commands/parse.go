package commands

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/fortuna/diamond/internal/corpus"
	"github.com/fortuna/diamond/internal/ingest/bbref"
)

var parseOpts struct {
	boxID string
	out   string
}

func init() {
	parseCmd.Flags().StringVar(&parseOpts.boxID, "box-id", "", "box score id of each page (default: the file name)")
	parseCmd.Flags().StringVar(&parseOpts.out, "out", "", "directory to write the flat tables as CSV")
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <page.html>... [--out <dir>]",
	Short: "Parses saved box score pages without fetching anything.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if parseOpts.boxID != "" && len(args) > 1 {
			return errors.New("--box-id applies to a single page")
		}

		records := make([]*bbref.GameRecord, 0, len(args))
		for _, path := range args {
			markup, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			id := parseOpts.boxID
			if id == "" {
				id = boxIDFromPath(path)
			}
			rec, err := bbref.ParseBoxScore(string(markup), id)
			if err != nil {
				return errors.Wrapf(err, "parse %s", path)
			}
			log.Debug("parsed box score", "box_score_id", id, "game_id", rec.ID())
			records = append(records, rec)
		}

		c, err := corpus.Aggregate(records, bbref.GameIndex{}, bbref.DefaultFranchises())
		if err != nil {
			return err
		}
		if parseOpts.out != "" {
			if err := writeCorpus(parseOpts.out, c); err != nil {
				return err
			}
			log.Info("wrote csv files", "dir", parseOpts.out)
		}
		printGames(c)
		return nil
	},
}

// boxIDFromPath turns "pages/BAL201606040.shtml" into "BAL201606040".
func boxIDFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
