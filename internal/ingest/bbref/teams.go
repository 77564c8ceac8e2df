package bbref

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// AllTeams is the team argument that walks every franchise active in a season.
const AllTeams = "ALL"

// Era is one period of a franchise's history under a single site code.
// From and To are inclusive season years; zero leaves that end open.
type Era struct {
	Code  string
	Name  string
	Short string
	From  int
	To    int
}

func (e Era) covers(year int) bool {
	return (e.From == 0 || year >= e.From) && (e.To == 0 || year <= e.To)
}

// Franchise is one physical club across its renames.
type Franchise struct {
	Eras []Era
}

// EraFor returns the era in force during a season.
func (f Franchise) EraFor(year int) (Era, bool) {
	for _, e := range f.Eras {
		if e.covers(year) {
			return e, true
		}
	}
	return Era{}, false
}

// CodeFor returns the period-correct site code for a season.
func (f Franchise) CodeFor(year int) (string, bool) {
	e, ok := f.EraFor(year)
	return e.Code, ok
}

// Franchises is an immutable, season-versioned lookup of clubs, site codes,
// display names and the short codes used by odds feeds.
type Franchises struct {
	list   []Franchise
	byCode map[string]int
	byName map[string]Era
}

// NewFranchises indexes the given franchises. Codes must be unique across all eras.
func NewFranchises(list []Franchise) (Franchises, error) {
	f := Franchises{
		list:   make([]Franchise, len(list)),
		byCode: make(map[string]int),
		byName: make(map[string]Era),
	}
	for i, fr := range list {
		if len(fr.Eras) == 0 {
			return Franchises{}, errors.Newf("franchise %d has no eras", i)
		}
		f.list[i] = Franchise{Eras: append([]Era(nil), fr.Eras...)}
		for _, e := range fr.Eras {
			code := strings.ToUpper(e.Code)
			if prev, dup := f.byCode[code]; dup && prev != i {
				return Franchises{}, errors.Newf("code %s claimed by two franchises", code)
			}
			f.byCode[code] = i
			if e.Name != "" {
				f.byName[e.Name] = e
			}
		}
	}
	return f, nil
}

// Lookup finds the franchise behind any of its era codes.
func (f Franchises) Lookup(code string) (Franchise, bool) {
	i, ok := f.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Franchise{}, false
	}
	return f.list[i], true
}

// Valid reports whether code names a franchise or is AllTeams.
func (f Franchises) Valid(code string) bool {
	if strings.EqualFold(strings.TrimSpace(code), AllTeams) {
		return true
	}
	_, ok := f.Lookup(code)
	return ok
}

// Active returns the sorted codes of every franchise playing in year.
func (f Franchises) Active(year int) []string {
	var codes []string
	for _, fr := range f.list {
		if code, ok := fr.CodeFor(year); ok {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// CodesFor resolves a requested team (any era code, or AllTeams) to the
// codes that must be queried for the given season.
func (f Franchises) CodesFor(team string, year int) ([]string, error) {
	if strings.EqualFold(strings.TrimSpace(team), AllTeams) {
		return f.Active(year), nil
	}
	fr, ok := f.Lookup(team)
	if !ok {
		return nil, errors.Mark(errors.Newf("unknown team code %q", team), ErrInvalidTeam)
	}
	code, ok := fr.CodeFor(year)
	if !ok {
		return nil, nil
	}
	return []string{code}, nil
}

// ShortCode maps a display name to the abbreviation used by odds feeds.
func (f Franchises) ShortCode(name string) (string, bool) {
	e, ok := f.byName[strings.TrimSpace(name)]
	if !ok || e.Short == "" {
		return "", false
	}
	return e.Short, true
}

// SiteCode maps a display name to its site code.
func (f Franchises) SiteCode(name string) (string, bool) {
	e, ok := f.byName[strings.TrimSpace(name)]
	return e.Code, ok
}

// DefaultFranchises is the modern major-league map, including the
// Florida/Miami, Devil Rays/Rays, Anaheim/Los Angeles and Montreal/Washington
// cutovers.
func DefaultFranchises() Franchises {
	f, err := NewFranchises(defaultFranchises)
	if err != nil {
		panic(err)
	}
	return f
}

var defaultFranchises = []Franchise{
	{Eras: []Era{{Code: "ARI", Name: "Arizona Diamondbacks", Short: "ARI", From: 1998}}},
	{Eras: []Era{{Code: "ATL", Name: "Atlanta Braves", Short: "ATL"}}},
	{Eras: []Era{{Code: "BAL", Name: "Baltimore Orioles", Short: "BAL"}}},
	{Eras: []Era{{Code: "BOS", Name: "Boston Red Sox", Short: "BOS"}}},
	{Eras: []Era{{Code: "CHC", Name: "Chicago Cubs", Short: "CUB"}}},
	{Eras: []Era{{Code: "CHW", Name: "Chicago White Sox", Short: "CWS"}}},
	{Eras: []Era{{Code: "CIN", Name: "Cincinnati Reds", Short: "CIN"}}},
	{Eras: []Era{
		{Code: "CLE", Name: "Cleveland Indians", Short: "CLE", To: 2021},
		{Code: "CLE", Name: "Cleveland Guardians", Short: "CLE", From: 2022},
	}},
	{Eras: []Era{{Code: "COL", Name: "Colorado Rockies", Short: "COL", From: 1993}}},
	{Eras: []Era{{Code: "DET", Name: "Detroit Tigers", Short: "DET"}}},
	{Eras: []Era{{Code: "HOU", Name: "Houston Astros", Short: "HOU"}}},
	{Eras: []Era{{Code: "KCR", Name: "Kansas City Royals", Short: "KAN"}}},
	{Eras: []Era{
		{Code: "ANA", Name: "Anaheim Angels", Short: "ANA", To: 2004},
		{Code: "LAA", Name: "Los Angeles Angels of Anaheim", Short: "LAA", From: 2005, To: 2015},
		{Code: "LAA", Name: "Los Angeles Angels", Short: "LAA", From: 2016},
	}},
	{Eras: []Era{{Code: "LAD", Name: "Los Angeles Dodgers", Short: "LAD"}}},
	{Eras: []Era{
		{Code: "FLA", Name: "Florida Marlins", Short: "FLA", From: 1993, To: 2011},
		{Code: "MIA", Name: "Miami Marlins", Short: "MIA", From: 2012},
	}},
	{Eras: []Era{{Code: "MIL", Name: "Milwaukee Brewers", Short: "MIL"}}},
	{Eras: []Era{{Code: "MIN", Name: "Minnesota Twins", Short: "MIN"}}},
	{Eras: []Era{{Code: "NYM", Name: "New York Mets", Short: "NYM"}}},
	{Eras: []Era{{Code: "NYY", Name: "New York Yankees", Short: "NYY"}}},
	{Eras: []Era{
		{Code: "OAK", Name: "Oakland Athletics", Short: "OAK", To: 2024},
		{Code: "ATH", Name: "Athletics", Short: "OAK", From: 2025},
	}},
	{Eras: []Era{{Code: "PHI", Name: "Philadelphia Phillies", Short: "PHI"}}},
	{Eras: []Era{{Code: "PIT", Name: "Pittsburgh Pirates", Short: "PIT"}}},
	{Eras: []Era{{Code: "SDP", Name: "San Diego Padres", Short: "SDG"}}},
	{Eras: []Era{{Code: "SEA", Name: "Seattle Mariners", Short: "SEA"}}},
	{Eras: []Era{{Code: "SFG", Name: "San Francisco Giants", Short: "SFO"}}},
	{Eras: []Era{{Code: "STL", Name: "St. Louis Cardinals", Short: "STL"}}},
	{Eras: []Era{
		{Code: "TBD", Name: "Tampa Bay Devil Rays", Short: "TAM", From: 1998, To: 2007},
		{Code: "TBR", Name: "Tampa Bay Rays", Short: "TAM", From: 2008},
	}},
	{Eras: []Era{{Code: "TEX", Name: "Texas Rangers", Short: "TEX"}}},
	{Eras: []Era{{Code: "TOR", Name: "Toronto Blue Jays", Short: "TOR"}}},
	{Eras: []Era{
		{Code: "MON", Name: "Montreal Expos", Short: "MON", To: 2004},
		{Code: "WSN", Name: "Washington Nationals", Short: "WAS", From: 2005},
	}},
}
