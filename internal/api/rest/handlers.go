package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"

	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/export"
	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
	"github.com/fortuna/diamond/internal/service"
	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/table"
)

type GameStore interface {
	GetByID(ctx context.Context, gameID int64) (*store.Game, error)
	GetByBoxScoreID(ctx context.Context, boxScoreID string) (*store.Game, error)
	GetByDate(ctx context.Context, date time.Time) ([]*store.Game, error)
}

type TeamGameStore interface {
	ListByGame(ctx context.Context, gameID int64) ([]*store.TeamGame, error)
	ListBySeason(ctx context.Context, season int, team string) ([]*store.TeamGame, error)
}

type PlayerStore interface {
	Batters(ctx context.Context, gameID int64) ([]*store.PlayerGame, error)
	Pitchers(ctx context.Context, gameID int64) ([]*store.PlayerGame, error)
}

type FeatureStore interface {
	List(ctx context.Context, season int, team string) (*table.Table, error)
}

type FailureStore interface {
	List(ctx context.Context, jobID int64, limit int) ([]*store.Failure, error)
}

type BackfillService interface {
	Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error)
	GetStatus(ctx context.Context) (*backfill.StatusSummary, error)
	GetJob(ctx context.Context, jobID int64) (*backfill.Job, error)
}

// HealthChecker is any backing service the health endpoint should probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the collaborators behind the REST API.
type Deps struct {
	Games      GameStore
	TeamGames  TeamGameStore
	Players    PlayerStore
	Features   FeatureStore
	Failures   FailureStore
	Backfill   BackfillService
	Franchises bbref.Franchises
	Health     map[string]HealthChecker
	Logger     *logging.Logger
}

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	deps  Deps
	games *service.GameService
	now   func() time.Time
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:  deps,
		games: service.NewGameService(deps.Games, deps.TeamGames, deps.Players),
		now:   time.Now,
	}
}

// HealthCheck probes every registered dependency.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	checks := map[string]string{}
	for name, c := range h.deps.Health {
		if err := c.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	respondJSON(w, code, map[string]any{
		"status":  status,
		"service": "diamond",
		"checks":  checks,
	})
}

// GetGamesByDate returns all games on a date, today by default.
func (h *Handler) GetGamesByDate(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		dateStr = h.now().Format(time.DateOnly)
	}
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	games, err := h.deps.Games.GetByDate(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch games", err)
		return
	}
	out := make([]map[string]any, 0, len(games))
	for _, g := range games {
		out = append(out, gamePayload(g))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetGame returns one game with its team and player lines.
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := strconv.ParseInt(mux.Vars(r)["gameID"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid game ID", err)
		return
	}
	box, err := h.games.GetBoxScore(r.Context(), gameID)
	respondBoxScore(w, box, err)
}

// GetGameByBoxScoreID resolves a site box score id such as BAL201606040.
func (h *Handler) GetGameByBoxScoreID(w http.ResponseWriter, r *http.Request) {
	box, err := h.games.GetBoxScoreByBoxScoreID(r.Context(), mux.Vars(r)["boxScoreID"])
	respondBoxScore(w, box, err)
}

func respondBoxScore(w http.ResponseWriter, box *service.BoxScore, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Game not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch game", err)
		return
	}

	payload := gamePayload(box.Game)
	if winner, ok := box.Winner(); ok {
		payload["winner"] = winner
	}
	payload["teams"] = teamsPayload(box.Teams)
	payload["batting"] = playersPayload(box.Batting)
	payload["pitching"] = playersPayload(box.Pitching)
	respondJSON(w, http.StatusOK, payload)
}

// GetTeams lists the clubs active in a season with their codes.
func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	out := []map[string]any{}
	for _, code := range h.deps.Franchises.Active(season) {
		fr, _ := h.deps.Franchises.Lookup(code)
		era, _ := fr.EraFor(season)
		team := map[string]any{"code": era.Code, "name": era.Name}
		if era.Short != "" {
			team["short_code"] = era.Short
		}
		out = append(out, team)
	}
	respondJSON(w, http.StatusOK, map[string]any{"season": season, "teams": out})
}

// GetTeamGames returns a club's team lines for a season. The path accepts
// any of the club's site codes.
func (h *Handler) GetTeamGames(w http.ResponseWriter, r *http.Request) {
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}
	name, err := h.teamName(mux.Vars(r)["team"], season)
	if err != nil {
		respondError(w, http.StatusNotFound, "Unknown team", err)
		return
	}

	lines, err := h.deps.TeamGames.ListBySeason(r.Context(), season, name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch team games", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"season": season,
		"team":   name,
		"games":  teamsPayload(lines),
	})
}

// GetFeatures returns a season's feature rows as JSON, or as CSV with
// format=csv.
func (h *Handler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("season") == "" {
		respondError(w, http.StatusBadRequest, "season is required", nil)
		return
	}
	season, err := h.season(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}
	var name string
	if code := q.Get("team"); code != "" {
		if name, err = h.teamName(code, season); err != nil {
			respondError(w, http.StatusNotFound, "Unknown team", err)
			return
		}
	}

	feats, err := h.deps.Features.List(r.Context(), season, name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch features", err)
		return
	}

	if strings.EqualFold(q.Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=features-"+strconv.Itoa(season)+".csv")
		if err := export.WriteCSV(w, feats); err != nil {
			h.deps.Logger.Error("write features csv", "err", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, tablePayload(feats))
}

func (h *Handler) season(r *http.Request) (int, error) {
	s := r.URL.Query().Get("season")
	if s == "" {
		return h.now().Year(), nil
	}
	season, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "season %q", s)
	}
	return season, nil
}

// teamName resolves a site code to the club's display name in a season.
func (h *Handler) teamName(code string, season int) (string, error) {
	fr, ok := h.deps.Franchises.Lookup(code)
	if !ok {
		return "", errors.Mark(errors.Newf("unknown team code %q", code), bbref.ErrInvalidTeam)
	}
	era, ok := fr.EraFor(season)
	if !ok {
		return "", errors.Mark(errors.Newf("%s did not play in %d", code, season), bbref.ErrInvalidTeam)
	}
	return era.Name, nil
}

func gamePayload(g *store.Game) map[string]any {
	payload := map[string]any{
		"game_id":      g.GameID,
		"box_score_id": g.BoxScoreID,
		"season":       g.Season,
		"game_date":    g.GameDate.Format(time.DateOnly),
		"date_text":    g.DateText,
		"away_team":    g.AwayTeam,
		"home_team":    g.HomeTeam,
	}
	setString(payload, "start_time", g.StartTime)
	setString(payload, "away_abbr", g.AwayAbbr)
	setString(payload, "home_abbr", g.HomeAbbr)
	setInt(payload, "away_score", g.AwayScore)
	setInt(payload, "home_score", g.HomeScore)
	setInt(payload, "attendance", g.Attendance)
	setString(payload, "venue", g.Venue)
	setString(payload, "duration", g.Duration)
	setString(payload, "note", g.Note)
	setString(payload, "away_starter", g.AwayStarter)
	setString(payload, "home_starter", g.HomeStarter)
	return payload
}

func teamsPayload(lines []*store.TeamGame) []map[string]any {
	out := make([]map[string]any, 0, len(lines))
	for _, t := range lines {
		p := map[string]any{
			"game_id":   t.GameID,
			"team":      t.Team,
			"opponent":  t.Opponent,
			"home_away": t.HomeAway,
			"stats":     t.Stats,
		}
		setInt(p, "game_num", t.GameNum)
		setInt(p, "game_num_opponent", t.GameNumOpponent)
		setString(p, "starter", t.Starter)
		setInt(p, "runs", t.Runs)
		setInt(p, "hits", t.Hits)
		setInt(p, "errors", t.Errors)
		out = append(out, p)
	}
	return out
}

func playersPayload(lines []*store.PlayerGame) []map[string]any {
	out := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		p := map[string]any{
			"team":      l.Team,
			"home_away": l.HomeAway,
			"line_no":   l.LineNo,
			"player":    l.Player,
			"stats":     l.Stats,
		}
		setString(p, "starter", l.Starter)
		out = append(out, p)
	}
	return out
}

// tablePayload keeps column order, which a JSON object would lose.
func tablePayload(t *table.Table) map[string]any {
	rows := make([][]table.Value, t.Len())
	for i := range rows {
		rows[i] = t.Values(i)
	}
	return map[string]any{"columns": t.Columns(), "rows": rows}
}

func setString(p map[string]any, key string, v sql.NullString) {
	if v.Valid {
		p[key] = v.String
	}
}

func setInt(p map[string]any, key string, v sql.NullInt64) {
	if v.Valid {
		p[key] = v.Int64
	}
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
