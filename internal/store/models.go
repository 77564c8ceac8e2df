package store

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/table"
)

// Stat is one named cell of a stat line.
type Stat struct {
	Name  string
	Value table.Value
}

func (s Stat) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.Name, s.Value})
}

func (s *Stat) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &s.Name); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &s.Value)
}

// StatLine is stored as a JSONB array of [name, value] pairs, which keeps
// column order across a round trip.
type StatLine []Stat

// Value encodes as text; lib/pq would send []byte as bytea.
func (l StatLine) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]Stat(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *StatLine) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Newf("cannot scan %T into StatLine", src)
	}
	var out []Stat
	if err := json.Unmarshal(data, &out); err != nil {
		return errors.Wrap(err, "decode stat line")
	}
	*l = out
	return nil
}

// StatLineOf copies the named columns of row i in order.
func StatLineOf(t *table.Table, i int, cols []string) StatLine {
	line := make(StatLine, len(cols))
	for j, c := range cols {
		line[j] = Stat{Name: c, Value: t.Get(i, c)}
	}
	return line
}

// Record returns the line as a table record plus its column order.
func (l StatLine) Record() ([]string, table.Record) {
	order := make([]string, len(l))
	rec := make(table.Record, len(l))
	for i, s := range l {
		order[i] = s.Name
		rec[s.Name] = s.Value
	}
	return order, rec
}

// Game is one row of the games table.
type Game struct {
	GameID      int64          `json:"game_id"`
	BoxScoreID  string         `json:"box_score_id"`
	Season      int            `json:"season"`
	GameDate    time.Time      `json:"game_date"`
	DateText    string         `json:"date_text"`
	StartTime   sql.NullString `json:"start_time"`
	AwayTeam    string         `json:"away_team"`
	HomeTeam    string         `json:"home_team"`
	AwayAbbr    sql.NullString `json:"away_abbr"`
	HomeAbbr    sql.NullString `json:"home_abbr"`
	AwayScore   sql.NullInt64  `json:"away_score"`
	HomeScore   sql.NullInt64  `json:"home_score"`
	Attendance  sql.NullInt64  `json:"attendance"`
	Venue       sql.NullString `json:"venue"`
	Duration    sql.NullString `json:"duration"`
	Note        sql.NullString `json:"note"`
	AwayStarter sql.NullString `json:"away_starter"`
	HomeStarter sql.NullString `json:"home_starter"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TeamGame is one side's line in one game. Stats holds every column beyond
// the fixed identity columns.
type TeamGame struct {
	GameID          int64          `json:"game_id"`
	Team            string         `json:"team"`
	Opponent        string         `json:"opponent"`
	HomeAway        string         `json:"home_away"`
	GameNum         sql.NullInt64  `json:"game_num"`
	GameNumOpponent sql.NullInt64  `json:"game_num_opponent"`
	Starter         sql.NullString `json:"starter"`
	Runs            sql.NullInt64  `json:"runs"`
	Hits            sql.NullInt64  `json:"hits"`
	Errors          sql.NullInt64  `json:"errors"`
	Stats           StatLine       `json:"stats"`
}

// PlayerGame is one batter or pitcher line.
type PlayerGame struct {
	GameID   int64          `json:"game_id"`
	Team     string         `json:"team"`
	HomeAway string         `json:"home_away"`
	LineNo   int            `json:"line_no"`
	Player   string         `json:"player"`
	Starter  sql.NullString `json:"starter,omitempty"`
	Stats    StatLine       `json:"stats"`
}

// FeatureRow is one team's pre-game feature vector.
type FeatureRow struct {
	GameID   int64        `json:"game_id"`
	Team     string       `json:"team"`
	Season   int          `json:"season"`
	GameDate sql.NullTime `json:"game_date"`
	GameNum  int64        `json:"game_num"`
	RowNo    int          `json:"row_no"`
	Features StatLine     `json:"features"`
	BuiltAt  time.Time    `json:"built_at"`
}

// Failure records a page that could not be fetched or parsed.
type Failure struct {
	ID         int64          `json:"id"`
	JobID      sql.NullInt64  `json:"job_id"`
	BoxScoreID sql.NullString `json:"box_score_id"`
	URL        string         `json:"url"`
	Kind       string         `json:"kind"`
	Message    string         `json:"message"`
	CreatedAt  time.Time      `json:"created_at"`
}
