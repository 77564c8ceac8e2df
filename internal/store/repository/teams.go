package repository

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/store"
)

const teamGameColumns = `t.game_id, t.team, t.opponent, t.home_away, t.game_num, t.game_num_opponent,
	t.starter, t.runs, t.hits, t.errors, t.stats`

// TeamGameRepository reads team lines.
type TeamGameRepository struct {
	db *store.Database
}

func NewTeamGameRepository(db *store.Database) *TeamGameRepository {
	return &TeamGameRepository{db: db}
}

// ListByGame returns the away line then the home line.
func (r *TeamGameRepository) ListByGame(ctx context.Context, gameID int64) ([]*store.TeamGame, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT `+teamGameColumns+`
		FROM team_games t
		WHERE t.game_id = $1
		ORDER BY CASE t.home_away WHEN 'Away' THEN 0 ELSE 1 END
	`, gameID)
	if err != nil {
		return nil, errors.Wrap(err, "querying team lines")
	}
	defer rows.Close()
	return scanTeamGames(rows)
}

// ListBySeason returns every team line of a season in schedule order,
// optionally restricted to one team name.
func (r *TeamGameRepository) ListBySeason(ctx context.Context, season int, team string) ([]*store.TeamGame, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT `+teamGameColumns+`
		FROM team_games t
		JOIN games g ON g.game_id = t.game_id
		WHERE g.season = $1 AND ($2 = '' OR t.team = $2)
		ORDER BY g.game_date, g.box_score_id, CASE t.home_away WHEN 'Away' THEN 0 ELSE 1 END
	`, season, team)
	if err != nil {
		return nil, errors.Wrap(err, "querying season team lines")
	}
	defer rows.Close()
	return scanTeamGames(rows)
}

func upsertTeamGame(ctx context.Context, q querier, t *store.TeamGame) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO team_games (game_id, team, opponent, home_away, game_num, game_num_opponent,
			starter, runs, hits, errors, stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (game_id, team) DO UPDATE SET
			opponent = EXCLUDED.opponent,
			home_away = EXCLUDED.home_away,
			game_num = COALESCE(EXCLUDED.game_num, team_games.game_num),
			game_num_opponent = COALESCE(EXCLUDED.game_num_opponent, team_games.game_num_opponent),
			starter = EXCLUDED.starter,
			runs = EXCLUDED.runs,
			hits = EXCLUDED.hits,
			errors = EXCLUDED.errors,
			stats = EXCLUDED.stats
	`,
		t.GameID, t.Team, t.Opponent, t.HomeAway, t.GameNum, t.GameNumOpponent,
		t.Starter, t.Runs, t.Hits, t.Errors, t.Stats,
	)
	if err != nil {
		return errors.Wrapf(err, "upserting team line %d/%s", t.GameID, t.Team)
	}
	return nil
}

func scanTeamGames(rows *sql.Rows) ([]*store.TeamGame, error) {
	var out []*store.TeamGame
	for rows.Next() {
		t := &store.TeamGame{}
		err := rows.Scan(
			&t.GameID, &t.Team, &t.Opponent, &t.HomeAway, &t.GameNum, &t.GameNumOpponent,
			&t.Starter, &t.Runs, &t.Hits, &t.Errors, &t.Stats,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scanning team line")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
