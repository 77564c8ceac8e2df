package bbref

import (
	"database/sql"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/table"
)

// Side is a team's role in a game.
type Side int

const (
	Away Side = iota
	Home
)

func (s Side) String() string {
	if s == Home {
		return "Home"
	}
	return "Away"
}

// Other returns the opposing side.
func (s Side) Other() Side { return 1 - s }

// Sides lists away before home, the order every output follows.
var Sides = [2]Side{Away, Home}

// ParseSide reads "Home" or "Away".
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "home":
		return Home, true
	case "away":
		return Away, true
	}
	return Away, false
}

const idSeparator = "\x1f"

// GameID hashes the identifying scorebox fields. Identical inputs always
// produce the same positive id.
func GameID(awayTeam, homeTeam, date, startTime string) int64 {
	key := strings.Join([]string{awayTeam, homeTeam, date, startTime}, idSeparator)
	return int64(xxhash.Sum64String(key) & 0x7fffffffffffffff)
}

// BoxScorePath is the site path of a box-score page; the first three
// characters of the id are the home club's code.
func BoxScorePath(boxScoreID string) string {
	if len(boxScoreID) < 3 {
		return "/boxes/" + boxScoreID + ".shtml"
	}
	return "/boxes/" + boxScoreID[:3] + "/" + boxScoreID + ".shtml"
}

// GameRecord is one fully assembled box score. It cannot be modified after
// assembly; table accessors return copies.
type GameRecord struct {
	id         int64
	boxScoreID string
	scorebox   Scorebox
	linescore  *table.Table
	batting    [2]*table.Table
	pitching   [2]*table.Table
	starters   [2]string
}

func (g *GameRecord) ID() int64          { return g.id }
func (g *GameRecord) BoxScoreID() string { return g.boxScoreID }
func (g *GameRecord) Path() string       { return BoxScorePath(g.boxScoreID) }
func (g *GameRecord) AwayTeam() string   { return g.scorebox.AwayTeam }
func (g *GameRecord) HomeTeam() string   { return g.scorebox.HomeTeam }

// Team returns the display name of a side.
func (g *GameRecord) Team(s Side) string {
	if s == Home {
		return g.scorebox.HomeTeam
	}
	return g.scorebox.AwayTeam
}

func (g *GameRecord) Date() time.Time              { return g.scorebox.Date }
func (g *GameRecord) DateText() string             { return g.scorebox.DateText }
func (g *GameRecord) Time() sql.NullString         { return g.scorebox.Time }
func (g *GameRecord) Attendance() sql.NullInt64    { return g.scorebox.Attendance }
func (g *GameRecord) Venue() sql.NullString        { return g.scorebox.Venue }
func (g *GameRecord) Duration() sql.NullString     { return g.scorebox.Duration }
func (g *GameRecord) Note() sql.NullString         { return g.scorebox.Note }
func (g *GameRecord) Scorebox() Scorebox           { return g.scorebox }
func (g *GameRecord) Linescore() *table.Table      { return g.linescore.Clone() }
func (g *GameRecord) Batting(s Side) *table.Table  { return g.batting[s].Clone() }
func (g *GameRecord) Pitching(s Side) *table.Table { return g.pitching[s].Clone() }
func (g *GameRecord) Starter(s Side) string        { return g.starters[s] }

// RecordBuilder collects the stages of one box score. Build publishes a
// record only when every stage was supplied.
type RecordBuilder struct {
	boxScoreID string
	scorebox   *Scorebox
	linescore  *table.Table
	batting    [2]*table.Table
	pitching   [2]*table.Table
}

func NewRecordBuilder(boxScoreID string) *RecordBuilder {
	return &RecordBuilder{boxScoreID: boxScoreID}
}

func (b *RecordBuilder) Scorebox(sb Scorebox) *RecordBuilder {
	b.scorebox = &sb
	return b
}

func (b *RecordBuilder) Linescore(t *table.Table) *RecordBuilder {
	b.linescore = t
	return b
}

func (b *RecordBuilder) Batting(s Side, t *table.Table) *RecordBuilder {
	b.batting[s] = t
	return b
}

func (b *RecordBuilder) Pitching(s Side, t *table.Table) *RecordBuilder {
	b.pitching[s] = t
	return b
}

// Build validates the collected stages and freezes them into a GameRecord.
func (b *RecordBuilder) Build() (*GameRecord, error) {
	switch {
	case b.scorebox == nil:
		return nil, errors.New("record incomplete: no scorebox")
	case b.linescore == nil:
		return nil, errors.New("record incomplete: no linescore")
	}
	if b.linescore.Len() != 2 {
		return nil, extractionf("linescore has %d rows, want 2", b.linescore.Len())
	}
	g := &GameRecord{
		boxScoreID: b.boxScoreID,
		scorebox:   *b.scorebox,
		linescore:  b.linescore.Clone(),
	}
	for _, s := range Sides {
		if b.batting[s] == nil {
			return nil, errors.Newf("record incomplete: no %s batting", s)
		}
		if b.pitching[s] == nil {
			return nil, errors.Newf("record incomplete: no %s pitching", s)
		}
		g.batting[s] = b.batting[s].Clone()
		g.pitching[s] = b.pitching[s].Clone()
		starter, ok := g.pitching[s].Get(0, playerColumn).AsString()
		if !ok || starter == "" {
			return nil, extractionf("%s pitching has no starter", s)
		}
		g.starters[s] = starter
	}
	g.id = GameID(g.scorebox.AwayTeam, g.scorebox.HomeTeam, g.scorebox.DateText, g.scorebox.Time.String)
	return g, nil
}
