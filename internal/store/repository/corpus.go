package repository

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/corpus"
	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/table"
)

// CorpusRepository writes a FlatCorpus atomically and reads seasons back as
// tables for feature derivation.
type CorpusRepository struct {
	db    *store.Database
	games *GameRepository
	teams *TeamGameRepository
}

func NewCorpusRepository(db *store.Database) *CorpusRepository {
	return &CorpusRepository{
		db:    db,
		games: NewGameRepository(db),
		teams: NewTeamGameRepository(db),
	}
}

// Save upserts every game and team line by GameID and replaces the player
// lines of those games.
func (r *CorpusRepository) Save(ctx context.Context, c *corpus.FlatCorpus) error {
	games, err := store.GamesFromTable(c.Games)
	if err != nil {
		return err
	}
	teams, err := store.TeamGamesFromTable(c.Teams)
	if err != nil {
		return err
	}
	batters, err := store.PlayersFromTable(c.Batters)
	if err != nil {
		return err
	}
	pitchers, err := store.PlayersFromTable(c.Pitchers)
	if err != nil {
		return err
	}

	ids := make([]int64, len(games))
	for i := range games {
		ids[i] = games[i].GameID
	}

	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		for i := range games {
			if err := upsertGame(ctx, tx, &games[i]); err != nil {
				return err
			}
		}
		for i := range teams {
			if err := upsertTeamGame(ctx, tx, &teams[i]); err != nil {
				return err
			}
		}
		if err := replacePlayers(ctx, tx, "batter_games", ids, batters); err != nil {
			return err
		}
		return replacePlayers(ctx, tx, "pitcher_games", ids, pitchers)
	})
}

// LoadSeason returns a season's game and team tables in schedule order.
func (r *CorpusRepository) LoadSeason(ctx context.Context, season int) (games, teams *table.Table, err error) {
	gs, err := r.games.GetBySeason(ctx, season)
	if err != nil {
		return nil, nil, err
	}
	if len(gs) == 0 {
		return nil, nil, errors.Mark(errors.Newf("no games stored for %d", season), store.ErrNotFound)
	}
	ts, err := r.teams.ListBySeason(ctx, season, "")
	if err != nil {
		return nil, nil, err
	}

	flatGames := make([]store.Game, len(gs))
	for i, g := range gs {
		flatGames[i] = *g
	}
	flatTeams := make([]store.TeamGame, len(ts))
	for i, t := range ts {
		flatTeams[i] = *t
	}
	return store.GamesTable(flatGames), store.TeamGamesTable(flatTeams), nil
}
