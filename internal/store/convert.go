package store

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/corpus"
	"github.com/fortuna/diamond/internal/table"
)

const dateLayout = "2006-01-02"

// GamesFromTable converts a corpus game table into rows.
func GamesFromTable(t *table.Table) ([]Game, error) {
	out := make([]Game, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		id, ok := r[corpus.ColGameID].AsInt()
		if !ok {
			return nil, errors.Newf("game row %d has no GameID", i)
		}
		date, err := time.Parse(dateLayout, r[corpus.ColGameDate].Text())
		if err != nil {
			return nil, errors.Wrapf(err, "game %d date", id)
		}
		season, _ := r[corpus.ColSeason].AsInt()
		out = append(out, Game{
			GameID:      id,
			BoxScoreID:  r[corpus.ColBoxScoreID].Text(),
			Season:      int(season),
			GameDate:    date,
			DateText:    r["Date"].Text(),
			StartTime:   nullString(r["Time"]),
			AwayTeam:    r["AwayTeam"].Text(),
			HomeTeam:    r["HomeTeam"].Text(),
			AwayAbbr:    nullString(r["AwayAbbr"]),
			HomeAbbr:    nullString(r["HomeAbbr"]),
			AwayScore:   nullInt(r["AwayScore"]),
			HomeScore:   nullInt(r["HomeScore"]),
			Attendance:  nullInt(r["Attendance"]),
			Venue:       nullString(r["Venue"]),
			Duration:    nullString(r["Duration"]),
			Note:        nullString(r["Note"]),
			AwayStarter: nullString(r["AwayStarter"]),
			HomeStarter: nullString(r["HomeStarter"]),
		})
	}
	return out, nil
}

// GamesTable is the inverse of GamesFromTable.
func GamesTable(games []Game) *table.Table {
	t := table.New(corpus.GameColumns()...)
	for _, g := range games {
		t.AppendRecord(nil, table.Record{
			corpus.ColGameID:     table.Int(g.GameID),
			corpus.ColBoxScoreID: table.String(g.BoxScoreID),
			corpus.ColSeason:     table.Int(int64(g.Season)),
			corpus.ColGameDate:   table.String(g.GameDate.Format(dateLayout)),
			"Date":               table.String(g.DateText),
			"Time":               stringValue(g.StartTime),
			"AwayTeam":           table.String(g.AwayTeam),
			"HomeTeam":           table.String(g.HomeTeam),
			"AwayAbbr":           stringValue(g.AwayAbbr),
			"HomeAbbr":           stringValue(g.HomeAbbr),
			"AwayScore":          intValue(g.AwayScore),
			"HomeScore":          intValue(g.HomeScore),
			"Attendance":         intValue(g.Attendance),
			"Venue":              stringValue(g.Venue),
			"Duration":           stringValue(g.Duration),
			"Note":               stringValue(g.Note),
			"AwayStarter":        stringValue(g.AwayStarter),
			"HomeStarter":        stringValue(g.HomeStarter),
		})
	}
	return t
}

// TeamGamesFromTable splits each team row into fixed columns and a stat line.
func TeamGamesFromTable(t *table.Table) ([]TeamGame, error) {
	fixed := map[string]bool{}
	for _, c := range corpus.TeamColumns() {
		fixed[c] = true
	}
	var rest []string
	for _, c := range t.Columns() {
		if !fixed[c] {
			rest = append(rest, c)
		}
	}

	out := make([]TeamGame, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		id, ok := r[corpus.ColGameID].AsInt()
		if !ok {
			return nil, errors.Newf("team row %d has no GameID", i)
		}
		out = append(out, TeamGame{
			GameID:          id,
			Team:            r[corpus.ColTeam].Text(),
			Opponent:        r[corpus.ColOpponent].Text(),
			HomeAway:        r[corpus.ColHomeAway].Text(),
			GameNum:         nullInt(r[corpus.ColGameNum]),
			GameNumOpponent: nullInt(r[corpus.ColGameNumOpponent]),
			Starter:         nullString(r[corpus.ColStarter]),
			Runs:            nullInt(r[corpus.ColRuns]),
			Hits:            nullInt(r[corpus.ColHits]),
			Errors:          nullInt(r[corpus.ColErrors]),
			Stats:           StatLineOf(t, i, rest),
		})
	}
	return out, nil
}

// TeamGamesTable rebuilds a team table; stat columns appear in first-seen
// order.
func TeamGamesTable(rows []TeamGame) *table.Table {
	t := table.New(corpus.TeamColumns()...)
	for _, g := range rows {
		order, rec := g.Stats.Record()
		rec[corpus.ColGameID] = table.Int(g.GameID)
		rec[corpus.ColTeam] = table.String(g.Team)
		rec[corpus.ColOpponent] = table.String(g.Opponent)
		rec[corpus.ColHomeAway] = table.String(g.HomeAway)
		rec[corpus.ColGameNum] = intValue(g.GameNum)
		rec[corpus.ColGameNumOpponent] = intValue(g.GameNumOpponent)
		rec[corpus.ColStarter] = stringValue(g.Starter)
		rec[corpus.ColRuns] = intValue(g.Runs)
		rec[corpus.ColHits] = intValue(g.Hits)
		rec[corpus.ColErrors] = intValue(g.Errors)
		t.AppendRecord(order, rec)
	}
	return t
}

// PlayersFromTable converts batter or pitcher rows. LineNo counts rows per
// (game, team) in table order.
func PlayersFromTable(t *table.Table) ([]PlayerGame, error) {
	skip := map[string]bool{
		corpus.ColGameID: true, corpus.ColTeam: true, corpus.ColHomeAway: true,
		corpus.ColStarter: true, "Player": true,
	}
	var rest []string
	for _, c := range t.Columns() {
		if !skip[c] {
			rest = append(rest, c)
		}
	}

	type side struct {
		id   int64
		team string
	}
	lines := map[side]int{}
	out := make([]PlayerGame, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		id, ok := r[corpus.ColGameID].AsInt()
		if !ok {
			return nil, errors.Newf("player row %d has no GameID", i)
		}
		k := side{id, r[corpus.ColTeam].Text()}
		lines[k]++
		out = append(out, PlayerGame{
			GameID:   id,
			Team:     k.team,
			HomeAway: r[corpus.ColHomeAway].Text(),
			LineNo:   lines[k],
			Player:   r["Player"].Text(),
			Starter:  nullString(r[corpus.ColStarter]),
			Stats:    StatLineOf(t, i, rest),
		})
	}
	return out, nil
}

// FeaturesFromTable converts a derived feature table for one season.
func FeaturesFromTable(season int, t *table.Table) ([]FeatureRow, error) {
	out := make([]FeatureRow, 0, t.Len())
	cols := t.Columns()
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		id, ok := r[corpus.ColGameID].AsInt()
		if !ok {
			return nil, errors.Newf("feature row %d has no GameID", i)
		}
		num, ok := r[corpus.ColGameNum].AsInt()
		if !ok {
			return nil, errors.Newf("feature row %d has no GameNum", i)
		}
		var date sql.NullTime
		if s, ok := r[corpus.ColGameDate].AsString(); ok {
			if d, err := time.Parse(dateLayout, s); err == nil {
				date = sql.NullTime{Time: d, Valid: true}
			}
		}
		out = append(out, FeatureRow{
			GameID:   id,
			Team:     r[corpus.ColTeam].Text(),
			Season:   season,
			GameDate: date,
			GameNum:  num,
			RowNo:    i,
			Features: StatLineOf(t, i, cols),
		})
	}
	return out, nil
}

// FeaturesTable rebuilds a feature table from stored rows in RowNo order.
func FeaturesTable(rows []FeatureRow) *table.Table {
	t := table.New()
	for _, r := range rows {
		t.AppendRecord(r.Features.Record())
	}
	return t
}

func nullInt(v table.Value) sql.NullInt64 {
	if i, ok := v.AsInt(); ok {
		return sql.NullInt64{Int64: i, Valid: true}
	}
	return sql.NullInt64{}
}

func nullString(v table.Value) sql.NullString {
	if s, ok := v.AsString(); ok {
		return sql.NullString{String: s, Valid: true}
	}
	return sql.NullString{}
}

func intValue(v sql.NullInt64) table.Value {
	if !v.Valid {
		return table.Null()
	}
	return table.Int(v.Int64)
}

func stringValue(v sql.NullString) table.Value {
	if !v.Valid {
		return table.Null()
	}
	return table.String(v.String)
}
