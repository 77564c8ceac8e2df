// Package repository holds the SQL for each stored entity.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/store"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const gameColumns = `game_id, box_score_id, season, game_date, date_text, start_time,
	away_team, home_team, away_abbr, home_abbr, away_score, home_score,
	attendance, venue, duration, note, away_starter, home_starter, created_at, updated_at`

// GameRepository reads and writes the games table.
type GameRepository struct {
	db *store.Database
}

func NewGameRepository(db *store.Database) *GameRepository {
	return &GameRepository{db: db}
}

func (r *GameRepository) GetByID(ctx context.Context, gameID int64) (*store.Game, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE game_id = $1`, gameID)
	game, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("game %d not found", gameID), store.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying game")
	}
	return game, nil
}

func (r *GameRepository) GetByBoxScoreID(ctx context.Context, boxScoreID string) (*store.Game, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE box_score_id = $1`, boxScoreID)
	game, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("box score %s not found", boxScoreID), store.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying game")
	}
	return game, nil
}

// GetByDate returns the games played on date's calendar day.
func (r *GameRepository) GetByDate(ctx context.Context, date time.Time) ([]*store.Game, error) {
	day := date.Format("2006-01-02")
	rows, err := r.db.DB().QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE game_date = $1::date ORDER BY box_score_id`, day)
	if err != nil {
		return nil, errors.Wrap(err, "querying games by date")
	}
	defer rows.Close()
	return scanGames(rows)
}

// GetBySeason returns a season's games in schedule order.
func (r *GameRepository) GetBySeason(ctx context.Context, season int) ([]*store.Game, error) {
	rows, err := r.db.DB().QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE season = $1 ORDER BY game_date, box_score_id`, season)
	if err != nil {
		return nil, errors.Wrap(err, "querying season games")
	}
	defer rows.Close()
	return scanGames(rows)
}

func upsertGame(ctx context.Context, q querier, g *store.Game) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO games (game_id, box_score_id, season, game_date, date_text, start_time,
			away_team, home_team, away_abbr, home_abbr, away_score, home_score,
			attendance, venue, duration, note, away_starter, home_starter)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (game_id) DO UPDATE SET
			box_score_id = EXCLUDED.box_score_id,
			season = EXCLUDED.season,
			game_date = EXCLUDED.game_date,
			date_text = EXCLUDED.date_text,
			start_time = EXCLUDED.start_time,
			away_team = EXCLUDED.away_team,
			home_team = EXCLUDED.home_team,
			away_abbr = EXCLUDED.away_abbr,
			home_abbr = EXCLUDED.home_abbr,
			away_score = EXCLUDED.away_score,
			home_score = EXCLUDED.home_score,
			attendance = EXCLUDED.attendance,
			venue = EXCLUDED.venue,
			duration = EXCLUDED.duration,
			note = EXCLUDED.note,
			away_starter = EXCLUDED.away_starter,
			home_starter = EXCLUDED.home_starter,
			updated_at = NOW()
	`,
		g.GameID, g.BoxScoreID, g.Season, g.GameDate, g.DateText, g.StartTime,
		g.AwayTeam, g.HomeTeam, g.AwayAbbr, g.HomeAbbr, g.AwayScore, g.HomeScore,
		g.Attendance, g.Venue, g.Duration, g.Note, g.AwayStarter, g.HomeStarter,
	)
	if err != nil {
		return errors.Wrapf(err, "upserting game %s", g.BoxScoreID)
	}
	return nil
}

func scanGame(s interface{ Scan(dest ...any) error }) (*store.Game, error) {
	g := &store.Game{}
	err := s.Scan(
		&g.GameID, &g.BoxScoreID, &g.Season, &g.GameDate, &g.DateText, &g.StartTime,
		&g.AwayTeam, &g.HomeTeam, &g.AwayAbbr, &g.HomeAbbr, &g.AwayScore, &g.HomeScore,
		&g.Attendance, &g.Venue, &g.Duration, &g.Note, &g.AwayStarter, &g.HomeStarter,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func scanGames(rows *sql.Rows) ([]*store.Game, error) {
	var games []*store.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning game")
		}
		games = append(games, g)
	}
	return games, rows.Err()
}
