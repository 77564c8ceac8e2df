package bbref

import (
	"github.com/cockroachdb/errors"
)

// ParseBoxScore turns one box-score page into a GameRecord. Any stage failure
// aborts the page; the error names the box-score id and keeps its class.
func ParseBoxScore(markup, boxScoreID string) (*GameRecord, error) {
	rec, err := parseBoxScore(markup, boxScoreID)
	if err != nil {
		return nil, errors.Wrapf(err, "box score %s", boxScoreID)
	}
	return rec, nil
}

func parseBoxScore(markup, boxScoreID string) (*GameRecord, error) {
	doc, err := ParseDocument(markup)
	if err != nil {
		return nil, err
	}

	sb, err := ParseScorebox(doc)
	if err != nil {
		return nil, err
	}
	b := NewRecordBuilder(boxScoreID).Scorebox(sb)

	sel, err := LocateTable(doc, Linescore())
	if err != nil {
		return nil, err
	}
	line, err := ExtractLinescore(sel)
	if err != nil {
		return nil, err
	}
	b.Linescore(line)

	for _, side := range Sides {
		team := sb.AwayTeam
		if side == Home {
			team = sb.HomeTeam
		}
		for _, kind := range []TableKind{BattingTable, PitchingTable} {
			role := Batting(team)
			if kind == PitchingTable {
				role = Pitching(team)
			}
			sel, err := LocateTable(doc, role)
			if err != nil {
				return nil, err
			}
			t, err := ExtractPlayerTable(sel, kind, role.ID())
			if err != nil {
				return nil, err
			}
			if kind == BattingTable {
				b.Batting(side, t)
			} else {
				b.Pitching(side, t)
			}
		}
	}
	return b.Build()
}
