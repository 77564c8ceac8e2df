package bbref

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fortuna/diamond/internal/table"
)

// TableKind selects the name-splitting policy and column typing of a player table.
type TableKind int

const (
	BattingTable TableKind = iota
	PitchingTable
)

func (k TableKind) String() string {
	if k == PitchingTable {
		return "pitching"
	}
	return "batting"
}

// AuxColumn is the column filled from the suffix of the player cell.
func (k TableKind) AuxColumn() string {
	if k == PitchingTable {
		return "Details"
	}
	return "Position"
}

const (
	// TotalsPosition marks the batting team-total row.
	TotalsPosition = "Total"
	playerColumn   = "Player"
)

var headerRenames = map[string]string{
	"Batting":  playerColumn,
	"Pitching": playerColumn,
}

var battingKinds = map[string]table.Kind{
	"AB": table.KindInt, "R": table.KindInt, "H": table.KindInt, "RBI": table.KindInt,
	"BB": table.KindInt, "SO": table.KindInt, "PA": table.KindInt, "Pit": table.KindInt,
	"Str": table.KindInt, "PO": table.KindInt, "A": table.KindInt,
	"BA": table.KindFloat, "OBP": table.KindFloat, "SLG": table.KindFloat, "OPS": table.KindFloat,
	"WPA": table.KindFloat, "aLI": table.KindFloat, "WPA+": table.KindFloat, "WPA-": table.KindFloat,
	"cWPA": table.KindFloat, "acLI": table.KindFloat, "RE24": table.KindFloat,
	"Details": table.KindString,
}

var pitchingKinds = map[string]table.Kind{
	"IP": table.KindFloat, "ERA": table.KindFloat, "WPA": table.KindFloat, "aLI": table.KindFloat,
	"cWPA": table.KindFloat, "acLI": table.KindFloat, "RE24": table.KindFloat,
	"H": table.KindInt, "R": table.KindInt, "ER": table.KindInt, "BB": table.KindInt,
	"SO": table.KindInt, "HR": table.KindInt, "BF": table.KindInt, "Pit": table.KindInt,
	"Str": table.KindInt, "Ctct": table.KindInt, "StS": table.KindInt, "StL": table.KindInt,
	"GB": table.KindInt, "FB": table.KindInt, "LD": table.KindInt, "Unk": table.KindInt,
	"GSc": table.KindInt, "IR": table.KindInt, "IS": table.KindInt,
}

var requiredColumns = map[TableKind][]string{
	BattingTable:  {playerColumn, "AB", "R", "H", "RBI", "BB", "SO", "PA", "OBP", "SLG"},
	PitchingTable: {playerColumn, "IP", "H", "R", "ER", "BB", "SO"},
}

func (k TableKind) declared(column string) (table.Kind, bool) {
	m := battingKinds
	if k == PitchingTable {
		m = pitchingKinds
	}
	kind, ok := m[column]
	return kind, ok
}

// cellText normalizes a cell: non-breaking spaces become spaces and runs of
// whitespace collapse to one.
func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s.Text(), "\u00a0", " ")), " ")
}

func rowCells(tr *goquery.Selection) []string {
	var cells []string
	tr.ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
		cells = append(cells, cellText(c))
	})
	return cells
}

func headerCells(sel *goquery.Selection) []string {
	return rowCells(sel.Find("thead tr").Last())
}

// bodyRows returns tbody rows then tfoot rows, skipping repeated header rows.
func bodyRows(sel *goquery.Selection) [][]string {
	var rows [][]string
	collect := func(_ int, tr *goquery.Selection) {
		if tr.HasClass("thead") {
			return
		}
		rows = append(rows, rowCells(tr))
	}
	sel.Find("tbody tr").Each(collect)
	sel.Find("tfoot tr").Each(collect)
	return rows
}

func isPlaceholder(text string) bool {
	return text == "" || text == "X"
}

func parseInt(text string) (table.Value, bool) {
	if isPlaceholder(text) {
		return table.Null(), true
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(text, ",", ""), 10, 64)
	if err != nil {
		return table.Null(), false
	}
	return table.Int(n), true
}

func parseFloat(text string) (table.Value, bool) {
	if isPlaceholder(text) {
		return table.Null(), true
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(text, "%"), 64)
	if err != nil {
		return table.Null(), false
	}
	return table.Float(f), true
}

// inferKind picks int when every non-placeholder cell is an integer, then
// float, then string.
func inferKind(cells []string) table.Kind {
	kind := table.KindInt
	for _, c := range cells {
		if isPlaceholder(c) {
			continue
		}
		if kind == table.KindInt {
			if _, ok := parseInt(c); ok {
				continue
			}
			kind = table.KindFloat
		}
		if _, ok := parseFloat(c); !ok {
			return table.KindString
		}
	}
	return kind
}

func parseCell(kind table.Kind, text string) (table.Value, bool) {
	switch kind {
	case table.KindInt:
		return parseInt(text)
	case table.KindFloat:
		return parseFloat(text)
	default:
		return table.NullableString(text), true
	}
}

// splitPlayer separates the name from the position (batting, last space) or
// the decision detail (pitching, last ", ").
func splitPlayer(kind TableKind, text string) (string, table.Value) {
	sep := " "
	if kind == PitchingTable {
		sep = ", "
	}
	i := strings.LastIndex(text, sep)
	if i < 0 {
		return text, table.Null()
	}
	return text[:i], table.NullableString(strings.TrimSpace(text[i+len(sep):]))
}

// ExtractPlayerTable converts a located batting or pitching table into a typed
// table. The final row is the team-total row: it keeps the published
// aggregates untouched and is never name-split.
func ExtractPlayerTable(sel *goquery.Selection, kind TableKind, tableID string) (*table.Table, error) {
	header := headerCells(sel)
	if len(header) == 0 {
		return nil, extractionf("%s: no header row", tableID)
	}
	playerIdx := -1
	for i, h := range header {
		if canon, ok := headerRenames[h]; ok {
			header[i] = canon
		}
		if header[i] == playerColumn && playerIdx < 0 {
			playerIdx = i
		}
	}
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	for _, col := range requiredColumns[kind] {
		if !present[col] {
			return nil, extractionf("%s: missing required column %q", tableID, col)
		}
	}

	var rows [][]string
	for _, r := range bodyRows(sel) {
		if playerIdx >= len(r) || r[playerIdx] == "" {
			continue
		}
		if len(r) != len(header) {
			return nil, extractionf("%s: row %q has %d columns, want %d", tableID, r[playerIdx], len(r), len(header))
		}
		rows = append(rows, r)
	}
	if len(rows) < 2 {
		return nil, extractionf("%s: no player rows", tableID)
	}

	kinds := make([]table.Kind, len(header))
	for j, h := range header {
		if j == playerIdx {
			kinds[j] = table.KindString
			continue
		}
		if k, ok := kind.declared(h); ok {
			kinds[j] = k
			continue
		}
		col := make([]string, len(rows))
		for i, r := range rows {
			col[i] = r[j]
		}
		kinds[j] = inferKind(col)
	}

	aux := kind.AuxColumn()
	columns := make([]string, 0, len(header)+1)
	for j, h := range header {
		columns = append(columns, h)
		if j == playerIdx {
			columns = append(columns, aux)
		}
	}
	out := table.New(columns...)

	last := len(rows) - 1
	for i, r := range rows {
		values := make([]table.Value, 0, len(columns))
		for j, text := range r {
			if j == playerIdx {
				if i == last {
					values = append(values, table.String(text), totalAux(kind))
					continue
				}
				name, detail := splitPlayer(kind, text)
				values = append(values, table.String(name), detail)
				continue
			}
			v, ok := parseCell(kinds[j], text)
			if !ok {
				return nil, extractionf("%s: row %d (%s) column %q: cannot parse %q as %s",
					tableID, i, r[playerIdx], header[j], text, kinds[j])
			}
			values = append(values, v)
		}
		if err := out.Append(values...); err != nil {
			return nil, extractionf("%s: %v", tableID, err)
		}
	}
	return out, nil
}

func totalAux(kind TableKind) table.Value {
	if kind == BattingTable {
		return table.String(TotalsPosition)
	}
	return table.Null()
}

// ExtractLinescore returns one row per team with columns Team, the innings
// 1..N, then R, H, E. Innings a side did not bat are null.
func ExtractLinescore(sel *goquery.Selection) (*table.Table, error) {
	header := headerCells(sel)
	if len(header) < 3 {
		return nil, extractionf("linescore: header has %d cells", len(header))
	}

	// The first cell is a label column, the second holds the team name.
	keep := []int{1}
	columns := []string{"Team"}
	summary := map[string]int{}
	for j := 2; j < len(header); j++ {
		h := header[j]
		if n, err := strconv.Atoi(h); err == nil && n > 0 {
			keep = append(keep, j)
			columns = append(columns, h)
			continue
		}
		if h == "R" || h == "H" || h == "E" {
			summary[h] = j
		}
	}
	if len(columns) == 1 {
		return nil, extractionf("linescore: no inning columns")
	}
	for _, h := range []string{"R", "H", "E"} {
		j, ok := summary[h]
		if !ok {
			return nil, extractionf("linescore: missing required column %q", h)
		}
		keep = append(keep, j)
		columns = append(columns, h)
	}

	out := table.New(columns...)
	var cellErr error
	sel.Find("tbody tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		cells := rowCells(tr)
		if len(cells) != len(header) || cells[1] == "" {
			return true
		}
		values := make([]table.Value, len(keep))
		values[0] = table.String(cells[1])
		for k, j := range keep[1:] {
			v, ok := parseInt(cells[j])
			if !ok {
				cellErr = extractionf("linescore: team %q column %q: cannot parse %q", cells[1], columns[k+1], cells[j])
				return false
			}
			values[k+1] = v
		}
		if err := out.Append(values...); err != nil {
			cellErr = extractionf("linescore: team %q: %v", cells[1], err)
			return false
		}
		return true
	})
	if cellErr != nil {
		return nil, cellErr
	}
	if out.Len() != 2 {
		return nil, extractionf("linescore: found %d team rows, want 2", out.Len())
	}
	return out, nil
}
