// Package service composes stored rows into the read models served by the
// API.
package service

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/store"
)

type GameReader interface {
	GetByID(ctx context.Context, gameID int64) (*store.Game, error)
	GetByBoxScoreID(ctx context.Context, boxScoreID string) (*store.Game, error)
}

type TeamGameReader interface {
	ListByGame(ctx context.Context, gameID int64) ([]*store.TeamGame, error)
}

type PlayerReader interface {
	Batters(ctx context.Context, gameID int64) ([]*store.PlayerGame, error)
	Pitchers(ctx context.Context, gameID int64) ([]*store.PlayerGame, error)
}

// GameService handles game-related read logic.
type GameService struct {
	games   GameReader
	teams   TeamGameReader
	players PlayerReader
}

func NewGameService(games GameReader, teams TeamGameReader, players PlayerReader) *GameService {
	return &GameService{games: games, teams: teams, players: players}
}

// BoxScore is a stored game with its team and player lines, away side first.
type BoxScore struct {
	Game     *store.Game
	Teams    []*store.TeamGame
	Batting  []*store.PlayerGame
	Pitching []*store.PlayerGame
}

// Winner names the side that scored more runs. ok is false while either
// score is unknown or the game ended level.
func (b *BoxScore) Winner() (team string, ok bool) {
	g := b.Game
	if !g.AwayScore.Valid || !g.HomeScore.Valid || g.AwayScore.Int64 == g.HomeScore.Int64 {
		return "", false
	}
	if g.AwayScore.Int64 > g.HomeScore.Int64 {
		return g.AwayTeam, true
	}
	return g.HomeTeam, true
}

// GetBoxScore loads every stored line of a game. A missing game keeps the
// store.ErrNotFound mark.
func (s *GameService) GetBoxScore(ctx context.Context, gameID int64) (*BoxScore, error) {
	game, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching game")
	}
	return s.withLines(ctx, game)
}

// GetBoxScoreByBoxScoreID is GetBoxScore keyed by the site's page id.
func (s *GameService) GetBoxScoreByBoxScoreID(ctx context.Context, boxScoreID string) (*BoxScore, error) {
	game, err := s.games.GetByBoxScoreID(ctx, boxScoreID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching game %s", boxScoreID)
	}
	return s.withLines(ctx, game)
}

func (s *GameService) withLines(ctx context.Context, game *store.Game) (*BoxScore, error) {
	gameID := game.GameID
	teams, err := s.teams.ListByGame(ctx, gameID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching team lines")
	}
	batting, err := s.players.Batters(ctx, gameID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching batting lines")
	}
	pitching, err := s.players.Pitchers(ctx, gameID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching pitching lines")
	}
	return &BoxScore{Game: game, Teams: teams, Batting: batting, Pitching: pitching}, nil
}
