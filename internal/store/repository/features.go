package repository

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/table"
)

// FeatureRepository stores derived pre-game features, one row per team game.
type FeatureRepository struct {
	db *store.Database
}

func NewFeatureRepository(db *store.Database) *FeatureRepository {
	return &FeatureRepository{db: db}
}

// ReplaceSeason swaps a season's feature rows for t in one transaction.
func (r *FeatureRepository) ReplaceSeason(ctx context.Context, season int, t *table.Table) (int, error) {
	rows, err := store.FeaturesFromTable(season, t)
	if err != nil {
		return 0, err
	}

	err = r.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM team_features WHERE season = $1`, season); err != nil {
			return errors.Wrapf(err, "clearing features for %d", season)
		}
		for _, f := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO team_features (game_id, team, season, game_date, game_num, row_no, features)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, f.GameID, f.Team, f.Season, f.GameDate, f.GameNum, f.RowNo, f.Features)
			if err != nil {
				return errors.Wrapf(err, "inserting features %d/%s", f.GameID, f.Team)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// List returns the stored feature table for a season in derivation order,
// optionally restricted to one team.
func (r *FeatureRepository) List(ctx context.Context, season int, team string) (*table.Table, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT game_id, team, season, game_date, game_num, row_no, features, built_at
		FROM team_features
		WHERE season = $1 AND ($2 = '' OR team = $2)
		ORDER BY row_no
	`, season, team)
	if err != nil {
		return nil, errors.Wrap(err, "querying features")
	}
	defer rows.Close()

	var out []store.FeatureRow
	for rows.Next() {
		var f store.FeatureRow
		if err := rows.Scan(&f.GameID, &f.Team, &f.Season, &f.GameDate, &f.GameNum, &f.RowNo, &f.Features, &f.BuiltAt); err != nil {
			return nil, errors.Wrap(err, "scanning features")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.FeaturesTable(out), nil
}
