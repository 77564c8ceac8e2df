package bbref

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
)

// The site ships most secondary tables inside HTML comments and reveals them
// with script, so the markers have to go before the document is parsed.
var commentMarkers = strings.NewReplacer("<!--", "", "-->", "")

// StripComments removes every comment marker from the page, exposing the
// tables hidden inside them.
func StripComments(markup string) string {
	return commentMarkers.Replace(markup)
}

// ParseDocument strips comment markers and parses the page.
func ParseDocument(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(StripComments(markup)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML")
	}
	return doc, nil
}

// TeamCode turns a display name into the form used in table ids:
// "St. Louis Cardinals" becomes "StLouisCardinals".
func TeamCode(name string) string {
	return strings.NewReplacer(" ", "", ".", "", "\u00a0", "").Replace(strings.TrimSpace(name))
}

type roleKind int

const (
	roleLinescore roleKind = iota
	roleBatting
	rolePitching
	roleSchedule
)

// Role identifies which embedded table to locate.
type Role struct {
	kind roleKind
	team string
}

func Linescore() Role               { return Role{kind: roleLinescore} }
func Batting(teamName string) Role  { return Role{kind: roleBatting, team: teamName} }
func Pitching(teamName string) Role { return Role{kind: rolePitching, team: teamName} }
func Schedule() Role                { return Role{kind: roleSchedule} }

// ID is the element id the role is published under.
func (r Role) ID() string {
	switch r.kind {
	case roleLinescore:
		return "linescore"
	case roleBatting:
		return TeamCode(r.team) + "batting"
	case rolePitching:
		return TeamCode(r.team) + "pitching"
	default:
		return "team_schedule"
	}
}

func (r Role) String() string {
	switch r.kind {
	case roleLinescore:
		return "linescore"
	case roleBatting:
		return "batting(" + r.team + ")"
	case rolePitching:
		return "pitching(" + r.team + ")"
	default:
		return "schedule"
	}
}

// LocateTable returns the single table for role. The linescore is matched by
// id or class since older pages only carry the class.
func LocateTable(doc *goquery.Document, r Role) (*goquery.Selection, error) {
	id := r.ID()
	selector := "table#" + id
	if r.kind == roleLinescore {
		selector += ", table." + id
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, notFoundf("table %s (id %q)", r, id)
	}
	return sel, nil
}
