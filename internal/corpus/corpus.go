// Package corpus flattens assembled box scores into the game, team, batter
// and pitcher tables consumed by feature derivation and storage.
package corpus

import (
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/table"
)

// ErrDuplicateGame is returned when two records hash to the same GameID.
var ErrDuplicateGame = bbref.ErrDuplicateGame

// Identity columns.
const (
	ColGameID          = "GameID"
	ColBoxScoreID      = "BoxScoreID"
	ColSeason          = "Season"
	ColGameDate        = "GameDate"
	ColTeam            = "Team"
	ColOpponent        = "Opponent"
	ColHomeAway        = "HomeAway"
	ColGameNum         = "GameNum"
	ColGameNumOpponent = "GameNumOpponent"
	ColStarter         = "Starter"
	ColRuns            = "Runs"
	ColHits            = "Hits"
	ColErrors          = "Errors"

	// PitchingPrefix marks pitching totals on the team table.
	PitchingPrefix = "Pitching_"
)

var gameColumns = []string{
	ColGameID, ColBoxScoreID, ColSeason, ColGameDate, "Date", "Time",
	"AwayTeam", "HomeTeam", "AwayAbbr", "HomeAbbr", "AwayScore", "HomeScore",
	"Attendance", "Venue", "Duration", "Note", "AwayStarter", "HomeStarter",
}

var teamColumns = []string{
	ColGameID, ColTeam, ColOpponent, ColHomeAway, ColGameNum, ColGameNumOpponent,
	ColStarter, ColRuns, ColHits, ColErrors,
}

// GameColumns lists the fixed game-table columns in order.
func GameColumns() []string { return append([]string(nil), gameColumns...) }

// TeamColumns lists the identity columns that lead every team row.
func TeamColumns() []string { return append([]string(nil), teamColumns...) }

// FlatCorpus holds the four tables built from a set of games.
type FlatCorpus struct {
	Games    *table.Table
	Teams    *table.Table
	Batters  *table.Table
	Pitchers *table.Table
}

// InningColumn names the team-table column for an inning.
func InningColumn(n int) string { return "Inning" + strconv.Itoa(n) }

// Aggregate folds records, in order, into a FlatCorpus. Rows follow record
// order, then away before home, then in-table order. The index supplies
// schedule game numbers; sides it does not cover get a null GameNum.
func Aggregate(records []*bbref.GameRecord, index bbref.GameIndex, franchises bbref.Franchises) (*FlatCorpus, error) {
	c := &FlatCorpus{
		Games:    table.New(gameColumns...),
		Teams:    table.New(teamColumns...),
		Batters:  table.New(ColGameID, ColTeam, ColHomeAway),
		Pitchers: table.New(ColGameID, ColTeam, ColHomeAway, ColStarter),
	}

	maxInnings := 0
	for _, rec := range records {
		if n := len(innings(rec.Linescore())); n > maxInnings {
			maxInnings = n
		}
	}
	for i := 1; i <= maxInnings; i++ {
		c.Teams.AddColumn(InningColumn(i))
	}

	seen := make(map[int64]string, len(records))
	for _, rec := range records {
		if prev, dup := seen[rec.ID()]; dup {
			return nil, errors.Mark(
				errors.Newf("game id %d shared by %s and %s", rec.ID(), prev, rec.BoxScoreID()),
				ErrDuplicateGame)
		}
		seen[rec.ID()] = rec.BoxScoreID()

		c.Games.AppendRecord(nil, gameRow(rec, franchises))
		line := rec.Linescore()
		for _, side := range bbref.Sides {
			order, row := teamRow(rec, side, line, index)
			c.Teams.AppendRecord(order, row)
			appendPlayers(c.Batters, rec, side, rec.Batting(side), nil)
			starter := table.String(rec.Starter(side))
			appendPlayers(c.Pitchers, rec, side, rec.Pitching(side), &starter)
		}
	}
	return c, nil
}

func gameRow(rec *bbref.GameRecord, franchises bbref.Franchises) table.Record {
	line := rec.Linescore()
	row := table.Record{
		ColGameID:     table.Int(rec.ID()),
		ColBoxScoreID: table.String(rec.BoxScoreID()),
		ColSeason:     table.Int(int64(rec.Date().Year())),
		ColGameDate:   table.String(rec.Date().Format("2006-01-02")),
		"Date":        table.String(rec.DateText()),
		"Time":        nullString(rec.Time().String, rec.Time().Valid),
		"AwayTeam":    table.String(rec.AwayTeam()),
		"HomeTeam":    table.String(rec.HomeTeam()),
		"AwayAbbr":    shortCode(franchises, rec.AwayTeam()),
		"HomeAbbr":    shortCode(franchises, rec.HomeTeam()),
		"AwayScore":   line.Get(int(bbref.Away), "R"),
		"HomeScore":   line.Get(int(bbref.Home), "R"),
		"Venue":       nullString(rec.Venue().String, rec.Venue().Valid),
		"Duration":    nullString(rec.Duration().String, rec.Duration().Valid),
		"Note":        nullString(rec.Note().String, rec.Note().Valid),
		"AwayStarter": table.String(rec.Starter(bbref.Away)),
		"HomeStarter": table.String(rec.Starter(bbref.Home)),
	}
	if a := rec.Attendance(); a.Valid {
		row["Attendance"] = table.Int(a.Int64)
	}
	return row
}

// teamRow returns the row plus the order of its stat columns, which are new
// to the table the first time a side's totals are seen.
func teamRow(rec *bbref.GameRecord, side bbref.Side, line *table.Table, index bbref.GameIndex) ([]string, table.Record) {
	i := int(side)
	row := table.Record{
		ColGameID:   table.Int(rec.ID()),
		ColTeam:     table.String(rec.Team(side)),
		ColOpponent: table.String(rec.Team(side.Other())),
		ColHomeAway: table.String(side.String()),
		ColStarter:  table.String(rec.Starter(side)),
		ColRuns:     line.Get(i, "R"),
		ColHits:     line.Get(i, "H"),
		ColErrors:   line.Get(i, "E"),
	}
	if p, ok := index.Lookup(rec.BoxScoreID(), side); ok {
		row[ColGameNum] = table.Int(int64(p.GameNum))
	}
	if p, ok := index.Lookup(rec.BoxScoreID(), side.Other()); ok {
		row[ColGameNumOpponent] = table.Int(int64(p.GameNum))
	}
	for n, col := range innings(line) {
		row[InningColumn(n+1)] = line.Get(i, col)
	}

	var order []string
	bat := rec.Batting(side)
	for _, col := range statColumns(bat) {
		order = append(order, col)
		row[col] = bat.Get(bat.Len()-1, col)
	}
	pit := rec.Pitching(side)
	for _, col := range statColumns(pit) {
		order = append(order, PitchingPrefix+col)
		row[PitchingPrefix+col] = pit.Get(pit.Len()-1, col)
	}
	return order, row
}

// appendPlayers adds every non-total row of a player table. Columns are
// added in table order so the output column order is deterministic.
func appendPlayers(dst *table.Table, rec *bbref.GameRecord, side bbref.Side, players *table.Table, starter *table.Value) {
	cols := players.Columns()
	for r := 0; r < players.Len()-1; r++ {
		row := players.Row(r)
		row[ColGameID] = table.Int(rec.ID())
		row[ColTeam] = table.String(rec.Team(side))
		row[ColHomeAway] = table.String(side.String())
		if starter != nil {
			row[ColStarter] = *starter
		}
		dst.AppendRecord(cols, row)
	}
}

// innings returns the numbered columns of a linescore in order.
func innings(line *table.Table) []string {
	var out []string
	for _, col := range line.Columns() {
		if n, err := strconv.Atoi(col); err == nil && n > 0 {
			out = append(out, col)
		}
	}
	return out
}

// statColumns are the total-row columns copied onto team rows; the player
// name and its split-off suffix carry no team statistic.
func statColumns(t *table.Table) []string {
	var out []string
	for _, col := range t.Columns() {
		switch col {
		case "Player", "Position", "Details":
			continue
		}
		out = append(out, col)
	}
	return out
}

func shortCode(f bbref.Franchises, name string) table.Value {
	if code, ok := f.ShortCode(name); ok {
		return table.String(code)
	}
	return table.Null()
}

func nullString(s string, valid bool) table.Value {
	if !valid {
		return table.Null()
	}
	return table.String(s)
}
