package bbref

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "http://bbref.test"

// pageFetcher serves canned pages by URL and records every request.
type pageFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	fallback string
	requests []string
}

func (f *pageFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, url)
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	if f.fallback != "" {
		return f.fallback, nil
	}
	return "", errors.Mark(errors.Newf("GET %s: 404", url), ErrFetch)
}

func (f *pageFetcher) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func date(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func schedulePage(code string, games ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><!--<table id="team_schedule"><tbody>`)
	for _, g := range games {
		// g is "num|date text|@ or empty|box id"
		parts := strings.Split(g, "|")
		fmt.Fprintf(&b, `<tr><th data-stat="team_game">%s</th><td data-stat="date_game">%s</td>`+
			`<td data-stat="boxscore"><a href="/boxes/%s/%s.shtml">boxscore</a></td>`+
			`<td data-stat="team_ID">%s</td><td data-stat="homeORvis">%s</td></tr>`,
			parts[0], parts[1], parts[3][:3], parts[3], code, parts[2])
	}
	b.WriteString(`</tbody></table>--></body></html>`)
	return b.String()
}

func collect(t *testing.T, seq func(func(ScheduleEntry, error) bool)) []ScheduleEntry {
	t.Helper()
	var out []ScheduleEntry
	for e, err := range seq {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestParseScheduleFixture(t *testing.T) {
	entries, err := ParseSchedule(loadFixture(t, "NYY-2016-schedule-scores.shtml"), "NYY", 2016)
	require.NoError(t, err)

	require.Len(t, entries, 6, "header repeat and preview rows are skipped")
	assert.Equal(t, "NYA201604050", entries[0].BoxScoreID)
	assert.Equal(t, Participant{TeamCode: "NYY", Side: Home, GameNum: 1}, entries[0].Participants[0])

	game := entries[3]
	assert.Equal(t, fixtureBoxID, game.BoxScoreID)
	assert.Equal(t, "/boxes/BAL/BAL201606040.shtml", game.Path)
	assert.Equal(t, date("2016-06-04"), game.Date)
	assert.Equal(t, Participant{TeamCode: "NYY", Side: Away, GameNum: 55}, game.Participants[0])

	// Doubleheader suffixes are dropped from the date.
	assert.Equal(t, date("2016-06-05"), entries[4].Date)
	assert.Equal(t, date("2016-06-05"), entries[5].Date)
}

func TestWalkFiltersByExactRange(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{
		testBase + SchedulePath("NYY", 2016): loadFixture(t, "NYY-2016-schedule-scores.shtml"),
	}}
	w := NewWalker(f, DefaultFranchises(), testBase)

	seq, err := w.Walk(context.Background(), "NYY", date("2016-06-04"), date("2016-06-05"))
	require.NoError(t, err)
	assert.Empty(t, f.requested(), "nothing is fetched until the sequence is ranged")

	got := collect(t, seq)
	var ids []string
	for _, e := range got {
		ids = append(ids, e.BoxScoreID)
	}
	assert.Equal(t, []string{"BAL201606040", "BAL201606051", "BAL201606052"}, ids)

	// Ranging again restarts the walk.
	again := collect(t, seq)
	assert.Len(t, again, 3)
	assert.Len(t, f.requested(), 2)
}

func TestWalkRejectsBadArgumentsBeforeFetching(t *testing.T) {
	f := &pageFetcher{}
	w := NewWalker(f, DefaultFranchises(), testBase)

	_, err := w.Walk(context.Background(), "NYY", date("2016-06-05"), date("2016-06-04"))
	assert.True(t, errors.Is(err, ErrInvalidDateRange))

	_, err = w.Walk(context.Background(), "XYZ", date("2016-06-04"), date("2016-06-05"))
	assert.True(t, errors.Is(err, ErrInvalidTeam))

	assert.Empty(t, f.requested())
}

func TestWalkResolvesFranchiseRenamePerSeason(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{
		testBase + SchedulePath("FLA", 2011): schedulePage("FLA", "162|Wednesday, Sep 28||FLA201109280"),
		testBase + SchedulePath("MIA", 2012): schedulePage("MIA", "1|Wednesday, Apr 4|@|SLN201204040"),
	}}
	w := NewWalker(f, DefaultFranchises(), testBase)

	// Requested by the modern code, but 2011 must still be walked as FLA.
	seq, err := w.Walk(context.Background(), "MIA", date("2011-09-01"), date("2012-04-30"))
	require.NoError(t, err)
	got := collect(t, seq)

	require.Len(t, got, 2)
	assert.Equal(t, "FLA201109280", got[0].BoxScoreID)
	assert.Equal(t, "SLN201204040", got[1].BoxScoreID)
	assert.Equal(t, []string{
		testBase + SchedulePath("FLA", 2011),
		testBase + SchedulePath("MIA", 2012),
	}, f.requested())
}

func TestWalkAllTeamsDeduplicates(t *testing.T) {
	empty := schedulePage("")
	f := &pageFetcher{
		fallback: empty,
		pages: map[string]string{
			testBase + SchedulePath("FLA", 2011): schedulePage("FLA", "162|Wednesday, Sep 28||FLA201109280"),
			testBase + SchedulePath("WSN", 2011): schedulePage("WSN", "161|Wednesday, Sep 28|@|FLA201109280"),
			testBase + SchedulePath("MIA", 2012): schedulePage("MIA", "1|Wednesday, Apr 4|@|SLN201204040"),
			testBase + SchedulePath("STL", 2012): schedulePage("STL", "1|Wednesday, Apr 4||SLN201204040"),
		},
	}
	w := NewWalker(f, DefaultFranchises(), testBase)

	seq, err := w.Walk(context.Background(), "all", date("2011-09-28"), date("2012-04-04"))
	require.NoError(t, err)
	got := collect(t, seq)

	require.Len(t, got, 2)
	assert.Len(t, got[0].Participants, 2)
	assert.Len(t, got[1].Participants, 2)

	reqs := strings.Join(f.requested(), "\n")
	assert.Contains(t, reqs, SchedulePath("FLA", 2011))
	assert.Contains(t, reqs, SchedulePath("MIA", 2012))
	assert.NotContains(t, reqs, SchedulePath("MIA", 2011))
	assert.NotContains(t, reqs, SchedulePath("FLA", 2012))

	idx := GameIndex{}
	for _, e := range got {
		idx.Add(e)
	}
	p, ok := idx.Lookup("FLA201109280", Away)
	require.True(t, ok)
	assert.Equal(t, Participant{TeamCode: "WSN", Side: Away, GameNum: 161}, p)
	p, ok = idx.Lookup("FLA201109280", Home)
	require.True(t, ok)
	assert.Equal(t, 162, p.GameNum)
}

func TestWalkYieldsFetchErrorsAndContinues(t *testing.T) {
	f := &pageFetcher{pages: map[string]string{
		testBase + SchedulePath("MIA", 2013): schedulePage("MIA", "1|Monday, Apr 1|@|WAS201304010"),
	}}
	w := NewWalker(f, DefaultFranchises(), testBase)

	seq, err := w.Walk(context.Background(), "MIA", date("2012-04-01"), date("2013-04-30"))
	require.NoError(t, err)

	var errs []error
	var ids []string
	for e, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, e.BoxScoreID)
	}
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrFetch))
	assert.Contains(t, errs[0].Error(), SchedulePath("MIA", 2012))
	assert.Equal(t, []string{"WAS201304010"}, ids)
}
