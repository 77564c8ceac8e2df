package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/corpus"
	"github.com/fortuna/diamond/internal/export"
	"github.com/fortuna/diamond/internal/ingest/bbref"
	dtable "github.com/fortuna/diamond/internal/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// writeCorpus writes the four flat tables under dir.
func writeCorpus(dir string, c *corpus.FlatCorpus) error {
	files := []struct {
		name string
		t    *dtable.Table
	}{
		{"games.csv", c.Games},
		{"teams.csv", c.Teams},
		{"batters.csv", c.Batters},
		{"pitchers.csv", c.Pitchers},
	}
	for _, f := range files {
		if err := export.WriteCSVFile(filepath.Join(dir, f.name), f.t); err != nil {
			return err
		}
	}
	return nil
}

func writeFeatures(dir string, features map[int]*dtable.Table) error {
	for _, season := range sortedSeasons(features) {
		path := filepath.Join(dir, fmt.Sprintf("features-%d.csv", season))
		if err := export.WriteCSVFile(path, features[season]); err != nil {
			return err
		}
	}
	return nil
}

func sortedSeasons(features map[int]*dtable.Table) []int {
	seasons := make([]int, 0, len(features))
	for s := range features {
		seasons = append(seasons, s)
	}
	sort.Ints(seasons)
	return seasons
}

// printResult renders the run summary and, when any, the skipped pages.
func printResult(res *backfill.Result) {
	t := newTable()
	t.SetTitle("Scrape summary")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Scheduled games", res.Scheduled})
	t.AppendRow(table.Row{"Box scores parsed", len(res.Records)})
	t.AppendRow(table.Row{"Pages skipped", len(res.Failures)})
	if res.Corpus != nil {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Game rows", res.Corpus.Games.Len()})
		t.AppendRow(table.Row{"Team rows", res.Corpus.Teams.Len()})
		t.AppendRow(table.Row{"Batter rows", res.Corpus.Batters.Len()})
		t.AppendRow(table.Row{"Pitcher rows", res.Corpus.Pitchers.Len()})
	}
	for _, season := range sortedSeasons(res.Features) {
		t.AppendRow(table.Row{fmt.Sprintf("Feature rows %d", season), res.Features[season].Len()})
	}
	t.Render()

	if len(res.Failures) == 0 {
		return
	}
	f := newTable()
	f.SetTitle("Skipped pages")
	f.AppendHeader(table.Row{"Box score", "Kind", "Error"})
	for _, pe := range res.Failures {
		id := pe.BoxScoreID
		if id == "" {
			id = "(schedule)"
		}
		f.AppendRow(table.Row{id, bbref.Kind(pe.Err), pe.Err.Error()})
	}
	f.Render()
}

// printGames lists one line per game with its final score.
func printGames(c *corpus.FlatCorpus) {
	t := newTable()
	t.AppendHeader(table.Row{"Box score", "Date", "Away", "R", "Home", "R", "Venue"})
	for i := 0; i < c.Games.Len(); i++ {
		row := c.Games.Row(i)
		t.AppendRow(table.Row{
			row[corpus.ColBoxScoreID].Text(), row[corpus.ColGameDate].Text(),
			row["AwayTeam"].Text(), row["AwayScore"].Text(),
			row["HomeTeam"].Text(), row["HomeScore"].Text(),
			row["Venue"].Text(),
		})
	}
	t.Render()
}

// consoleReporter logs job progress for interactive runs.
type consoleReporter struct {
	backfill.NopReporter
	every int
}

func (c *consoleReporter) OnJobStart(spec backfill.JobSpec) {
	log.Info("scrape started",
		"team", spec.Team,
		"start", spec.Start.Format("2006-01-02"),
		"end", spec.End.Format("2006-01-02"),
		"dry_run", spec.DryRun)
}

func (c *consoleReporter) OnScheduleReady(total int) {
	log.Info("schedule ready", "games", total)
}

func (c *consoleReporter) OnGameProcessed(boxScoreID string, current, total int) {
	if c.every > 0 && current%c.every != 0 && current != total {
		return
	}
	log.Info("box score parsed", "box_score_id", boxScoreID, "current", current, "total", total)
}

func (c *consoleReporter) OnPageFailed(pe *bbref.PageError, current, total int) {
	log.Warn("page skipped", "box_score_id", pe.BoxScoreID, "url", pe.URL, "kind", bbref.Kind(pe.Err), "err", pe.Err)
}

func (c *consoleReporter) OnProgress(message string) {
	log.Info(message)
}

func (c *consoleReporter) OnJobError(err error) {
	log.Error("scrape failed", "err", err)
}
