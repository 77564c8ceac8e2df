package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/diamond/internal/export"
)

const boxScorePage = "../../../internal/ingest/bbref/testdata/BAL201606040.shtml"

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestBoxIDFromPath(t *testing.T) {
	assert.Equal(t, "BAL201606040", boxIDFromPath("pages/BAL201606040.shtml"))
	assert.Equal(t, "NYA201704020", boxIDFromPath("NYA201704020"))
}

func TestScrapeRequestDates(t *testing.T) {
	scrapeOpts.start, scrapeOpts.end, scrapeOpts.season = "2016-06-04", "2016-06-05", 0
	t.Cleanup(func() { scrapeOpts.start, scrapeOpts.end = "", "" })

	req, err := scrapeRequest()
	require.NoError(t, err)
	start, end, err := req.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 6, 4, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2016, 6, 5, 0, 0, 0, 0, time.UTC), end)

	scrapeOpts.end = "June 5"
	_, err = scrapeRequest()
	assert.ErrorContains(t, err, "parse --end")
}

func TestParseThenFeatures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, execute(t, "parse", boxScorePage, "--out", dir))

	for _, name := range []string{"games.csv", "teams.csv", "batters.csv", "pitchers.csv"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	f, err := os.Open(filepath.Join(dir, "games.csv"))
	require.NoError(t, err)
	defer f.Close()
	games, err := export.ReadCSV(f)
	require.NoError(t, err)
	require.Equal(t, 1, games.Len())
	assert.Equal(t, "BAL201606040", games.Get(0, "BoxScoreID").Text())

	out := filepath.Join(dir, "features.csv")
	require.NoError(t, execute(t, "features",
		"--teams", filepath.Join(dir, "teams.csv"),
		"--games", filepath.Join(dir, "games.csv"),
		"--out", out))

	ff, err := os.Open(out)
	require.NoError(t, err)
	defer ff.Close()
	feats, err := export.ReadCSV(ff)
	require.NoError(t, err)
	// A lone page has no schedule game numbers, so no row can be sequenced.
	assert.Equal(t, 0, feats.Len())
	assert.Contains(t, feats.Columns(), "Runs_Mean_Opp_Def")
}

func TestFeaturesNeedsOneSource(t *testing.T) {
	featureOpts.teams, featureOpts.games, featureOpts.out = "", "", ""
	err := execute(t, "features")
	assert.ErrorContains(t, err, "exactly one of --season or --teams")
}
