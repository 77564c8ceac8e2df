package bbref

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ScoreboxDateLayout is the long date printed in the scorebox.
const ScoreboxDateLayout = "Monday, January 2, 2006"

// Scorebox is the header panel of a box score. Every line but the date is
// optional and varies by season and ballpark.
type Scorebox struct {
	AwayTeam   string
	HomeTeam   string
	Date       time.Time
	DateText   string
	Time       sql.NullString
	Attendance sql.NullInt64
	Venue      sql.NullString
	Duration   sql.NullString
	Note       sql.NullString
}

type metaField int

const (
	metaTime metaField = iota
	metaAttendance
	metaVenue
	metaDuration
)

// Labels are matched by substring so missing or reordered lines never shift
// values into the wrong field.
var metaLabels = []struct {
	label string
	field metaField
}{
	{"Start Time:", metaTime},
	{"Attendance:", metaAttendance},
	{"Venue:", metaVenue},
	{"Game Duration:", metaDuration},
}

const noteMarker = "Game, on"

// ParseScorebox reads team names and the labeled meta lines.
func ParseScorebox(doc *goquery.Document) (Scorebox, error) {
	var sb Scorebox
	box := doc.Find("div.scorebox").First()
	if box.Length() == 0 {
		return sb, notFoundf("scorebox panel")
	}

	names := box.Find("a[itemprop=name]")
	if names.Length() < 2 {
		names = box.Find("strong a")
	}
	if names.Length() < 2 {
		return sb, notFoundf("scorebox team links (found %d)", names.Length())
	}
	sb.AwayTeam = cellText(names.Eq(0))
	sb.HomeTeam = cellText(names.Eq(1))

	var metaErr error
	box.Find("div.scorebox_meta > div").EachWithBreak(func(_ int, line *goquery.Selection) bool {
		text := cellText(line)
		if text == "" {
			return true
		}
		for _, m := range metaLabels {
			i := strings.Index(text, m.label)
			if i < 0 {
				continue
			}
			value := strings.TrimSpace(text[i+len(m.label):])
			switch m.field {
			case metaTime:
				sb.Time = nullString(value)
			case metaAttendance:
				n, err := strconv.ParseInt(strings.ReplaceAll(value, ",", ""), 10, 64)
				if err != nil {
					metaErr = extractionf("scorebox attendance %q is not a number", value)
					return false
				}
				sb.Attendance = sql.NullInt64{Int64: n, Valid: true}
			case metaVenue:
				sb.Venue = nullString(value)
			case metaDuration:
				sb.Duration = nullString(value)
			}
			return true
		}
		if strings.Contains(text, noteMarker) {
			sb.Note = nullString(text)
			return true
		}
		if d, err := time.Parse(ScoreboxDateLayout, text); err == nil && sb.DateText == "" {
			sb.Date = d
			sb.DateText = text
		}
		return true
	})
	if metaErr != nil {
		return sb, metaErr
	}

	if sb.DateText == "" {
		return sb, notFoundf("scorebox date line")
	}
	return sb, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
