package features

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/diamond/internal/corpus"
	"github.com/fortuna/diamond/internal/table"
)

var teamCols = []string{
	"GameID", "Team", "Opponent", "HomeAway", "GameNum", "GameNumOpponent", "Starter",
	"Runs", "Hits", "Errors", "AB", "RBI", "BB", "SO", "PA", "OBP", "SLG",
}

type line struct {
	team, opp, side       string
	num, oppNum           int64
	runs, hits, errs, rbi int64
	bb, so, ab, pa        int64
	obp, slg              float64
}

// season builds a three-game series: A hosts B twice, then B hosts A.
func season(t *testing.T) *table.Table {
	t.Helper()
	games := []struct {
		id         int64
		away, home line
	}{
		{101,
			line{team: "A", opp: "B", side: "Away", num: 1, oppNum: 1, runs: 4, hits: 8, errs: 1, rbi: 4, bb: 2, so: 7, ab: 34, pa: 38, obp: 0.300, slg: 0.400},
			line{team: "B", opp: "A", side: "Home", num: 1, oppNum: 1, runs: 2, hits: 6, errs: 0, rbi: 2, bb: 3, so: 9, ab: 31, pa: 35, obp: 0.280, slg: 0.350}},
		{102,
			line{team: "A", opp: "B", side: "Away", num: 2, oppNum: 2, runs: 6, hits: 11, errs: 0, rbi: 5, bb: 4, so: 5, ab: 37, pa: 42, obp: 0.380, slg: 0.510},
			line{team: "B", opp: "A", side: "Home", num: 2, oppNum: 2, runs: 7, hits: 10, errs: 2, rbi: 7, bb: 1, so: 8, ab: 35, pa: 37, obp: 0.320, slg: 0.480}},
		{103,
			line{team: "B", opp: "A", side: "Away", num: 3, oppNum: 3, runs: 1, hits: 4, errs: 1, rbi: 1, bb: 0, so: 12, ab: 30, pa: 31, obp: 0.150, slg: 0.200},
			line{team: "A", opp: "B", side: "Home", num: 3, oppNum: 3, runs: 3, hits: 7, errs: 0, rbi: 3, bb: 2, so: 6, ab: 29, pa: 33, obp: 0.290, slg: 0.390}},
	}

	tbl := table.New(teamCols...)
	for _, g := range games {
		for _, l := range []line{g.away, g.home} {
			require.NoError(t, tbl.Append(
				table.Int(g.id), table.String(l.team), table.String(l.opp), table.String(l.side),
				table.Int(l.num), table.Int(l.oppNum), table.String(l.team+" starter"),
				table.Int(l.runs), table.Int(l.hits), table.Int(l.errs), table.Int(l.ab),
				table.Int(l.rbi), table.Int(l.bb), table.Int(l.so), table.Int(l.pa),
				table.Float(l.obp), table.Float(l.slg),
			))
		}
	}
	return tbl
}

func float(t *testing.T, v table.Value) float64 {
	t.Helper()
	f, ok := v.AsFloat()
	require.True(t, ok, "expected a number, got %v", v)
	return f
}

func rowsFor(out *table.Table, team string) []int {
	var idx []int
	for i := 0; i < out.Len(); i++ {
		if s, _ := out.Get(i, "Team").AsString(); s == team {
			idx = append(idx, i)
		}
	}
	return idx
}

func TestDeriveOutputColumns(t *testing.T) {
	out, err := Derive(season(t), nil)
	require.NoError(t, err)

	want := []string{
		"GameID", "Team", "Opponent", "HomeAway", "GameNum", "GameNumOpponent", "Starter", "Starter_Opp",
		"Runs", "Runs_Opp",
		"Runs_Mean", "Hits_Mean", "Errors_Mean", "RBI_Mean", "BB_Mean", "SO_Mean", "SLG_Mean", "OBP_Mean",
		"Runs_Mean_Opp", "Hits_Mean_Opp", "Errors_Mean_Opp", "RBI_Mean_Opp", "BB_Mean_Opp", "SO_Mean_Opp",
		"SLG_Mean_Opp", "OBP_Mean_Opp",
		"Runs_Mean_Opp_Def", "Hits_Mean_Opp_Def", "Errors_Mean_Opp_Def", "RBI_Mean_Opp_Def", "BB_Mean_Opp_Def",
		"SO_Mean_Opp_Def", "SLG_Mean_Opp_Def", "OBP_Mean_Opp_Def",
	}
	if diff := cmp.Diff(want, out.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	for _, c := range out.Columns() {
		assert.NotContains(t, c, "_Total", "unlagged cumulative columns must not leak")
		assert.NotContains(t, c, "_NUM")
	}
}

func TestDeriveOrdersByGameNumThenInput(t *testing.T) {
	out, err := Derive(season(t), nil)
	require.NoError(t, err)

	var got []string
	for i := 0; i < out.Len(); i++ {
		got = append(got, out.Get(i, "GameNum").Text()+out.Get(i, "Team").Text())
	}
	assert.Equal(t, []string{"1A", "1B", "2A", "2B", "3B", "3A"}, got)
}

func TestDeriveLagInvariant(t *testing.T) {
	team := season(t)
	out, err := Derive(team, nil)
	require.NoError(t, err)

	for _, name := range []string{"A", "B"} {
		rows := rowsFor(out, name)
		require.Len(t, rows, 3)

		for _, c := range FeatureColumns() {
			assert.True(t, out.Get(rows[0], c).IsNull(), "%s game 1 %s must be null", name, c)
		}

		// Expanding means over games strictly before k.
		var runs, oppRuns []float64
		for k, r := range rows {
			if k > 0 {
				assert.InDelta(t, mean(runs), float(t, out.Get(r, "Runs_Mean")), 1e-12, "%s game %d", name, k+1)
				assert.InDelta(t, mean(oppRuns), float(t, out.Get(r, "Runs_Mean_Opp")), 1e-12, "%s game %d", name, k+1)
			}
			runs = append(runs, float(t, out.Get(r, "Runs")))
			oppRuns = append(oppRuns, float(t, out.Get(r, "Runs_Opp")))
		}
	}
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func TestDeriveRatiosWeightByOpportunities(t *testing.T) {
	out, err := Derive(season(t), nil)
	require.NoError(t, err)

	a := rowsFor(out, "A")
	// After games 1 and 2: OBP = (0.300*38 + 0.380*42) / (38+42), SLG = (0.400*34 + 0.510*37) / (34+37).
	wantOBP := (0.300*38 + 0.380*42) / 80
	wantSLG := (0.400*34 + 0.510*37) / 71
	assert.InDelta(t, wantOBP, float(t, out.Get(a[2], "OBP_Mean")), 1e-12)
	assert.InDelta(t, wantSLG, float(t, out.Get(a[2], "SLG_Mean")), 1e-12)

	// Not the unweighted average of the per-game rates.
	assert.NotEqual(t, (0.300+0.380)/2, float(t, out.Get(a[2], "OBP_Mean")))

	// Opponent ratio after A's first two games: B's lines in games 101 and 102.
	wantOppOBP := (0.280*35 + 0.320*37) / 72
	assert.InDelta(t, wantOppOBP, float(t, out.Get(a[2], "OBP_Mean_Opp")), 1e-12)
}

func TestDeriveDefenseJoinUsesOpponentsLaggedRow(t *testing.T) {
	out, err := Derive(season(t), nil)
	require.NoError(t, err)

	a := rowsFor(out, "A")
	b := rowsFor(out, "B")
	for k := range a {
		for _, c := range DefenseColumns() {
			src := c[:len(c)-len("_Def")]
			assert.True(t, out.Get(b[k], src).Equal(out.Get(a[k], c)), "game %d %s", k+1, c)
		}
	}
	// Lagged, so game 1 has no defensive features either.
	assert.True(t, out.Get(a[0], "Runs_Mean_Opp_Def").IsNull())
	// A allowed mean(2, 7) before game 3; B allowed A's mean(4, 6).
	assert.InDelta(t, 4.5, float(t, out.Get(a[2], "Runs_Mean_Opp")), 1e-12)
	assert.InDelta(t, 5.0, float(t, out.Get(a[2], "Runs_Mean_Opp_Def")), 1e-12)
}

func TestDeriveLabelsAndIdentity(t *testing.T) {
	out, err := Derive(season(t), nil)
	require.NoError(t, err)

	first := out.Row(0)
	assert.Equal(t, "4", first["Runs"].Text())
	assert.Equal(t, "2", first["Runs_Opp"].Text())
	assert.Equal(t, "A starter", first["Starter"].Text())
	assert.Equal(t, "B starter", first["Starter_Opp"].Text())
	assert.Equal(t, "1", first["GameNumOpponent"].Text())
}

func TestDeriveAttachesGameDate(t *testing.T) {
	games := table.New(corpus.ColGameID, corpus.ColGameDate)
	require.NoError(t, games.Append(table.Int(101), table.String("2016-04-04")))
	require.NoError(t, games.Append(table.Int(102), table.String("2016-04-05")))

	out, err := Derive(season(t), games)
	require.NoError(t, err)
	assert.Equal(t, "GameDate", out.Columns()[1])
	assert.Equal(t, "2016-04-04", out.Get(0, "GameDate").Text())
	assert.True(t, out.Get(4, "GameDate").IsNull())
}

func TestDeriveRequiresGameNum(t *testing.T) {
	team := season(t)
	team.DropColumn("GameNum")

	_, err := Derive(team, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestDeriveSkipsNullStatsAndUnnumberedRows(t *testing.T) {
	team := season(t)
	// A's second-game runs are unknown and B's third game is outside the walk.
	team.Set(2, "Runs", table.Null())
	team.Set(4, "GameNum", table.Null())

	out, err := Derive(team, nil)
	require.NoError(t, err)

	assert.Len(t, rowsFor(out, "B"), 2)
	a := rowsFor(out, "A")
	require.Len(t, a, 3)
	assert.InDelta(t, 4.0, float(t, out.Get(a[2], "Runs_Mean")), 1e-12)
	// The unnumbered row still served as A's opponent in game 103.
	assert.Equal(t, "1", out.Get(a[2], "Runs_Opp").Text())
	assert.True(t, out.Get(a[2], "Runs_Mean_Opp_Def").IsNull())
}

func TestDeriveZeroDenominatorIsNull(t *testing.T) {
	team := season(t)
	team.Set(0, "PA", table.Int(0))
	team.Set(0, "AB", table.Int(0))

	out, err := Derive(team, nil)
	require.NoError(t, err)

	a := rowsFor(out, "A")
	assert.True(t, out.Get(a[1], "OBP_Mean").IsNull())
	assert.True(t, out.Get(a[1], "SLG_Mean").IsNull())
	assert.False(t, out.Get(a[2], "OBP_Mean").IsNull())
}
