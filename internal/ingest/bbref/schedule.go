package bbref

import (
	"context"
	"fmt"
	"iter"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
)

// DefaultBaseURL is the public site root.
const DefaultBaseURL = "https://www.baseball-reference.com"

// scheduleDateLayout is the schedule's date text, which omits the year.
const scheduleDateLayout = "Monday, Jan 2 2006"

// Doubleheader games carry a " (1)" or " (2)" suffix on the date.
var doubleheaderSuffix = regexp.MustCompile(`\s*\(\d\)\s*$`)

// Fetcher retrieves the raw markup at url. Failures should be marked ErrFetch.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Participant is one club's view of a scheduled game.
type Participant struct {
	TeamCode string
	Side     Side
	GameNum  int
}

// ScheduleEntry is one completed game with a box score.
type ScheduleEntry struct {
	Date         time.Time
	BoxScoreID   string
	Path         string
	Participants []Participant
}

// SchedulePath is the site path of a club's season schedule.
func SchedulePath(code string, year int) string {
	return fmt.Sprintf("/teams/%s/%d-schedule-scores.shtml", code, year)
}

// ParseSchedule reads one season schedule page for club code. Rows without
// a box-score link (future or postponed games) are skipped.
func ParseSchedule(markup, code string, year int) ([]ScheduleEntry, error) {
	doc, err := ParseDocument(markup)
	if err != nil {
		return nil, err
	}
	sel, err := LocateTable(doc, Schedule())
	if err != nil {
		return nil, err
	}

	var (
		entries []ScheduleEntry
		rowErr  error
	)
	sel.Find("tbody tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		if tr.HasClass("thead") {
			return true
		}
		href, ok := tr.Find(`[data-stat="boxscore"] a`).Attr("href")
		if !ok || href == "" {
			return true
		}
		dateText := doubleheaderSuffix.ReplaceAllString(cellText(tr.Find(`[data-stat="date_game"]`)), "")
		date, err := time.Parse(scheduleDateLayout, fmt.Sprintf("%s %d", dateText, year))
		if err != nil {
			rowErr = extractionf("schedule %s %d: bad date %q", code, year, dateText)
			return false
		}
		gameNum, err := strconv.Atoi(cellText(tr.Find(`[data-stat="team_game"]`)))
		if err != nil {
			rowErr = extractionf("schedule %s %d: bad game number on %s", code, year, dateText)
			return false
		}
		side := Home
		if cellText(tr.Find(`[data-stat="homeORvis"]`)) == "@" {
			side = Away
		}
		id := strings.TrimSuffix(path.Base(href), ".shtml")
		entries = append(entries, ScheduleEntry{
			Date:         date,
			BoxScoreID:   id,
			Path:         BoxScorePath(id),
			Participants: []Participant{{TeamCode: code, Side: side, GameNum: gameNum}},
		})
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return entries, nil
}

// Walker enumerates box-score pages over a date range.
type Walker struct {
	fetcher    Fetcher
	franchises Franchises
	baseURL    string
}

func NewWalker(fetcher Fetcher, franchises Franchises, baseURL string) *Walker {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Walker{
		fetcher:    fetcher,
		franchises: franchises,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// URL joins a site path onto the walker's base.
func (w *Walker) URL(p string) string { return w.baseURL + p }

// Walk validates its arguments and returns a lazy sequence of games between
// start and end inclusive. Each season is fetched only when the sequence
// reaches it, and every range over the sequence starts again from the first
// season. A failed schedule fetch is yielded as an error; iteration continues
// with the next club if the consumer keeps ranging.
func (w *Walker) Walk(ctx context.Context, team string, start, end time.Time) (iter.Seq2[ScheduleEntry, error], error) {
	start, end = day(start), day(end)
	if start.After(end) {
		return nil, errors.Mark(
			errors.Newf("start %s is after end %s", start.Format(time.DateOnly), end.Format(time.DateOnly)),
			ErrInvalidDateRange)
	}
	if !w.franchises.Valid(team) {
		return nil, errors.Mark(errors.Newf("unknown team code %q", team), ErrInvalidTeam)
	}

	return func(yield func(ScheduleEntry, error) bool) {
		for year := start.Year(); year <= end.Year(); year++ {
			if ctx.Err() != nil {
				yield(ScheduleEntry{}, ctx.Err())
				return
			}
			codes, err := w.franchises.CodesFor(team, year)
			if err != nil {
				yield(ScheduleEntry{}, err)
				return
			}
			season, ok := w.season(ctx, codes, year, yield)
			if !ok {
				return
			}
			for _, e := range season {
				if e.Date.Before(start) || e.Date.After(end) {
					continue
				}
				if !yield(e, nil) {
					return
				}
			}
		}
	}, nil
}

// season fetches every club page for one year and merges them, deduplicated
// by box-score id and ordered by (date, id). It reports false when the
// consumer stopped.
func (w *Walker) season(ctx context.Context, codes []string, year int, yield func(ScheduleEntry, error) bool) ([]ScheduleEntry, bool) {
	byID := make(map[string]*ScheduleEntry)
	for _, code := range codes {
		url := w.URL(SchedulePath(code, year))
		markup, err := w.fetcher.Fetch(ctx, url)
		if err == nil {
			var entries []ScheduleEntry
			entries, err = ParseSchedule(markup, code, year)
			for _, e := range entries {
				if prev, dup := byID[e.BoxScoreID]; dup {
					prev.Participants = append(prev.Participants, e.Participants...)
					continue
				}
				byID[e.BoxScoreID] = &e
			}
		}
		if err != nil {
			if !yield(ScheduleEntry{}, errors.Wrapf(err, "schedule %s", url)) {
				return nil, false
			}
		}
	}

	out := make([]ScheduleEntry, 0, len(byID))
	for _, e := range byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].BoxScoreID < out[j].BoxScoreID
	})
	return out, true
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GameKey addresses one side of one box score.
type GameKey struct {
	BoxScoreID string
	Side       Side
}

// GameIndex maps each side of a walked game to its club code and game number.
type GameIndex map[GameKey]Participant

// Add records every participant of an entry.
func (idx GameIndex) Add(e ScheduleEntry) {
	for _, p := range e.Participants {
		idx[GameKey{BoxScoreID: e.BoxScoreID, Side: p.Side}] = p
	}
}

// Lookup returns the participant for one side of a game.
func (idx GameIndex) Lookup(boxScoreID string, s Side) (Participant, bool) {
	p, ok := idx[GameKey{BoxScoreID: boxScoreID, Side: s}]
	return p, ok
}
