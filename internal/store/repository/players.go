package repository

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/store"
)

// PlayerRepository reads batter and pitcher lines.
type PlayerRepository struct {
	db *store.Database
}

func NewPlayerRepository(db *store.Database) *PlayerRepository {
	return &PlayerRepository{db: db}
}

func (r *PlayerRepository) Batters(ctx context.Context, gameID int64) ([]*store.PlayerGame, error) {
	return r.list(ctx, `
		SELECT game_id, team, home_away, line_no, player, NULL::text, stats
		FROM batter_games WHERE game_id = $1
		ORDER BY CASE home_away WHEN 'Away' THEN 0 ELSE 1 END, line_no
	`, gameID)
}

func (r *PlayerRepository) Pitchers(ctx context.Context, gameID int64) ([]*store.PlayerGame, error) {
	return r.list(ctx, `
		SELECT game_id, team, home_away, line_no, player, starter, stats
		FROM pitcher_games WHERE game_id = $1
		ORDER BY CASE home_away WHEN 'Away' THEN 0 ELSE 1 END, line_no
	`, gameID)
}

func (r *PlayerRepository) list(ctx context.Context, query string, gameID int64) ([]*store.PlayerGame, error) {
	rows, err := r.db.DB().QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, errors.Wrap(err, "querying player lines")
	}
	defer rows.Close()

	var out []*store.PlayerGame
	for rows.Next() {
		p := &store.PlayerGame{}
		if err := rows.Scan(&p.GameID, &p.Team, &p.HomeAway, &p.LineNo, &p.Player, &p.Starter, &p.Stats); err != nil {
			return nil, errors.Wrap(err, "scanning player line")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// replacePlayers rewrites every line of the given games so a re-scrape with
// fewer players leaves no stale rows.
func replacePlayers(ctx context.Context, q querier, tableName string, games []int64, rows []store.PlayerGame) error {
	var del string
	switch tableName {
	case "batter_games":
		del = `DELETE FROM batter_games WHERE game_id = $1`
	case "pitcher_games":
		del = `DELETE FROM pitcher_games WHERE game_id = $1`
	default:
		return errors.Newf("unknown player table %q", tableName)
	}
	for _, id := range games {
		if _, err := q.ExecContext(ctx, del, id); err != nil {
			return errors.Wrapf(err, "clearing %s for game %d", tableName, id)
		}
	}

	for _, p := range rows {
		var err error
		if tableName == "batter_games" {
			_, err = q.ExecContext(ctx, `
				INSERT INTO batter_games (game_id, team, home_away, line_no, player, stats)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, p.GameID, p.Team, p.HomeAway, p.LineNo, p.Player, p.Stats)
		} else {
			_, err = q.ExecContext(ctx, `
				INSERT INTO pitcher_games (game_id, team, home_away, line_no, player, starter, stats)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, p.GameID, p.Team, p.HomeAway, p.LineNo, p.Player, p.Starter, p.Stats)
		}
		if err != nil {
			return errors.Wrapf(err, "inserting %s line %d/%s/%d", tableName, p.GameID, p.Team, p.LineNo)
		}
	}
	return nil
}
