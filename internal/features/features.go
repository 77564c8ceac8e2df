// Package features derives pre-game, per-team rolling statistics from a
// season of team-level box-score rows.
//
// Every feature on a row describes only the games a team played before that
// row's game. Row k of a team sees games 1..k-1; a team's first game has no
// features.
package features

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/corpus"
	"github.com/fortuna/diamond/internal/table"
)

// ErrInvalidInput means the team or game table lacks a required column.
var ErrInvalidInput = errors.New("invalid input")

const (
	oppSuffix = "_Opp"
	defSuffix = "_Def"
)

// countStats are averaged over games played.
var countStats = []string{corpus.ColRuns, corpus.ColHits, corpus.ColErrors, "RBI", "BB", "SO"}

// Ratio statistics are rebuilt from numerator and denominator totals.
type ratio struct {
	name        string
	rate        string
	denominator string
}

var ratios = []ratio{
	{name: "SLG", rate: "SLG", denominator: "AB"},
	{name: "OBP", rate: "OBP", denominator: "PA"},
}

var requiredTeamColumns = []string{
	corpus.ColGameID, corpus.ColTeam, corpus.ColOpponent, corpus.ColHomeAway, corpus.ColGameNum,
	corpus.ColRuns, corpus.ColHits, corpus.ColErrors, "AB", "RBI", "BB", "SO", "PA", "OBP", "SLG",
}

// FeatureColumns lists the 16 lagged features in output order: the team's
// own offense, then the offense its opponents produced.
func FeatureColumns() []string {
	var own, opp []string
	for _, s := range countStats {
		own = append(own, s+"_Mean")
		opp = append(opp, s+"_Mean"+oppSuffix)
	}
	for _, r := range ratios {
		own = append(own, r.name+"_Mean")
		opp = append(opp, r.name+"_Mean"+oppSuffix)
	}
	return append(own, opp...)
}

// DefenseColumns lists the 8 features joined from the opponent's row.
func DefenseColumns() []string {
	var out []string
	for _, c := range FeatureColumns() {
		if strings.HasSuffix(c, oppSuffix) {
			out = append(out, c+defSuffix)
		}
	}
	return out
}

// IdentityColumns precede the labels and features in the output.
func IdentityColumns(withDate bool) []string {
	cols := []string{corpus.ColGameID}
	if withDate {
		cols = append(cols, corpus.ColGameDate)
	}
	return append(cols, corpus.ColTeam, corpus.ColOpponent, corpus.ColHomeAway,
		corpus.ColGameNum, corpus.ColGameNumOpponent, corpus.ColStarter, corpus.ColStarter+oppSuffix)
}

// LabelColumns are the outcomes a model predicts.
func LabelColumns() []string {
	return []string{corpus.ColRuns, corpus.ColRuns + oppSuffix}
}

// stats holds one side's raw values for a game; absent values are nil.
type stats map[string]*float64

type teamGame struct {
	input    int
	gameID   int64
	team     string
	opponent string
	gameNum  table.Value
	opp      *teamGame
	own      stats
	against  stats
	lagged   map[string]table.Value
}

type key struct {
	gameID int64
	team   string
}

// Derive builds the feature table from a season's team rows. game is
// optional; when given it supplies GameDate. Rows without a GameNum are used
// as opponents but produce no output row of their own, since they cannot be
// placed in their team's sequence.
func Derive(team, game *table.Table) (*table.Table, error) {
	if team == nil {
		return nil, errors.Mark(errors.New("team table is nil"), ErrInvalidInput)
	}
	for _, col := range requiredTeamColumns {
		if !team.HasColumn(col) {
			return nil, errors.Mark(errors.Newf("team table has no %q column", col), ErrInvalidInput)
		}
	}
	dates, err := gameDates(game)
	if err != nil {
		return nil, err
	}

	rows := make([]*teamGame, team.Len())
	byKey := make(map[key]*teamGame, team.Len())
	for i := range rows {
		id, ok := team.Get(i, corpus.ColGameID).AsInt()
		if !ok {
			return nil, errors.Mark(errors.Newf("row %d has no GameID", i), ErrInvalidInput)
		}
		name, _ := team.Get(i, corpus.ColTeam).AsString()
		opp, _ := team.Get(i, corpus.ColOpponent).AsString()
		g := &teamGame{
			input:    i,
			gameID:   id,
			team:     name,
			opponent: opp,
			gameNum:  team.Get(i, corpus.ColGameNum),
			own:      rawStats(team, i),
		}
		rows[i] = g
		byKey[key{id, name}] = g
	}

	// First join: the opponent's raw line in the same game.
	for _, g := range rows {
		g.opp = byKey[key{g.gameID, g.opponent}]
		if g.opp != nil {
			g.against = g.opp.own
		} else {
			g.against = stats{}
		}
	}

	ordered := sequence(rows)
	for _, games := range groupByTeam(ordered) {
		lag(games)
	}

	cols := IdentityColumns(dates != nil)
	cols = append(cols, LabelColumns()...)
	cols = append(cols, FeatureColumns()...)
	cols = append(cols, DefenseColumns()...)
	out := table.New(cols...)

	for _, g := range ordered {
		rec := table.Record{
			corpus.ColGameID:          table.Int(g.gameID),
			corpus.ColTeam:            team.Get(g.input, corpus.ColTeam),
			corpus.ColOpponent:        team.Get(g.input, corpus.ColOpponent),
			corpus.ColHomeAway:        team.Get(g.input, corpus.ColHomeAway),
			corpus.ColGameNum:         g.gameNum,
			corpus.ColGameNumOpponent: team.Get(g.input, corpus.ColGameNumOpponent),
			corpus.ColStarter:         team.Get(g.input, corpus.ColStarter),
			corpus.ColRuns:            team.Get(g.input, corpus.ColRuns),
		}
		if dates != nil {
			rec[corpus.ColGameDate] = dates[g.gameID]
		}
		if g.opp != nil {
			rec[corpus.ColRuns+oppSuffix] = team.Get(g.opp.input, corpus.ColRuns)
			rec[corpus.ColStarter+oppSuffix] = team.Get(g.opp.input, corpus.ColStarter)
		}
		for name, v := range g.lagged {
			rec[name] = v
		}
		// Second join: what the opponent's previous opponents produced, i.e.
		// the defense this team is about to face, already lagged.
		for _, c := range DefenseColumns() {
			v := table.Null()
			if g.opp != nil && g.opp.lagged != nil {
				v = g.opp.lagged[c[:len(c)-len(defSuffix)]]
			}
			rec[c] = v
		}
		out.AppendRecord(nil, rec)
	}
	return out, nil
}

func gameDates(game *table.Table) (map[int64]table.Value, error) {
	if game == nil {
		return nil, nil
	}
	for _, col := range []string{corpus.ColGameID, corpus.ColGameDate} {
		if !game.HasColumn(col) {
			return nil, errors.Mark(errors.Newf("game table has no %q column", col), ErrInvalidInput)
		}
	}
	dates := make(map[int64]table.Value, game.Len())
	for i := 0; i < game.Len(); i++ {
		if id, ok := game.Get(i, corpus.ColGameID).AsInt(); ok {
			dates[id] = game.Get(i, corpus.ColGameDate)
		}
	}
	return dates, nil
}

func rawStats(t *table.Table, i int) stats {
	s := stats{}
	read := func(col string) *float64 {
		f, ok := t.Get(i, col).AsFloat()
		if !ok {
			return nil
		}
		return &f
	}
	for _, c := range countStats {
		s[c] = read(c)
	}
	for _, r := range ratios {
		rate, denom := read(r.rate), read(r.denominator)
		s[r.denominator] = denom
		if rate != nil && denom != nil {
			num := *rate * *denom
			s[r.name+"_NUM"] = &num
		}
	}
	return s
}

// sequence drops rows without a game number and orders the rest by GameNum,
// keeping input order for ties.
func sequence(rows []*teamGame) []*teamGame {
	var out []*teamGame
	for _, g := range rows {
		if _, ok := g.gameNum.AsFloat(); ok {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return gameNum(out[i]) < gameNum(out[j]) })
	return out
}

func gameNum(g *teamGame) float64 {
	f, _ := g.gameNum.AsFloat()
	return f
}

func groupByTeam(ordered []*teamGame) [][]*teamGame {
	index := make(map[string]int)
	var groups [][]*teamGame
	for _, g := range ordered {
		i, ok := index[g.team]
		if !ok {
			i = len(groups)
			index[g.team] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], g)
	}
	return groups
}

// accumulator is an expanding sum that skips missing values.
type accumulator struct {
	sum float64
	n   int
}

func (a *accumulator) add(v *float64) {
	if v != nil {
		a.sum += *v
		a.n++
	}
}

func (a accumulator) mean() table.Value {
	if a.n == 0 {
		return table.Null()
	}
	return table.Float(a.sum / float64(a.n))
}

func quotient(num, denom accumulator) table.Value {
	if num.n == 0 || denom.n == 0 || denom.sum == 0 {
		return table.Null()
	}
	return table.Float(num.sum / denom.sum)
}

// lag assigns each game the expanding statistics of the games before it.
// Features are read from the accumulators before the game's own line is
// added, which is the one-row shift.
func lag(games []*teamGame) {
	acc := map[string]*accumulator{}
	get := func(name string) *accumulator {
		a, ok := acc[name]
		if !ok {
			a = &accumulator{}
			acc[name] = a
		}
		return a
	}

	for _, g := range games {
		sides := [2]struct {
			suffix string
			vals   stats
		}{{"", g.own}, {oppSuffix, g.against}}

		g.lagged = make(map[string]table.Value, 16)
		for _, side := range sides {
			for _, c := range countStats {
				g.lagged[c+"_Mean"+side.suffix] = get(c + side.suffix).mean()
			}
			for _, r := range ratios {
				num, denom := get(r.name+"_NUM"+side.suffix), get(r.denominator+side.suffix)
				g.lagged[r.name+"_Mean"+side.suffix] = quotient(*num, *denom)
			}
		}

		for _, side := range sides {
			for _, c := range countStats {
				get(c + side.suffix).add(side.vals[c])
			}
			for _, r := range ratios {
				get(r.name + "_NUM" + side.suffix).add(side.vals[r.name+"_NUM"])
				get(r.denominator + side.suffix).add(side.vals[r.denominator])
			}
		}
	}
}
