// Package publisher announces scraped games and built feature sets on Redis
// streams for downstream consumers.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const (
	StreamGamesScraped  = "games.scraped.baseball_mlb"
	StreamFeaturesBuilt = "features.built.baseball_mlb"
)

// GameScraped is published once per stored game.
type GameScraped struct {
	JobID      int64  `json:"job_id,omitempty"`
	GameID     int64  `json:"game_id"`
	BoxScoreID string `json:"box_score_id"`
	GameDate   string `json:"game_date"`
	AwayTeam   string `json:"away_team"`
	HomeTeam   string `json:"home_team"`
	AwayScore  *int64 `json:"away_score,omitempty"`
	HomeScore  *int64 `json:"home_score,omitempty"`
}

// FeaturesBuilt is published after a season's feature rows are stored.
type FeaturesBuilt struct {
	JobID  int64 `json:"job_id,omitempty"`
	Season int   `json:"season"`
	Rows   int   `json:"rows"`
}

// RedisPublisher writes events to Redis streams.
type RedisPublisher struct {
	client *redis.Client
	maxLen int64
	now    func() time.Time
}

// NewRedisPublisher connects and pings Redis.
func NewRedisPublisher(redisURL string) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedisStreamPublisher(client), nil
}

// NewRedisStreamPublisher shares an existing client.
func NewRedisStreamPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, maxLen: 100000, now: time.Now}
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) PublishGameScraped(ctx context.Context, ev GameScraped) error {
	return p.publish(ctx, StreamGamesScraped, ev)
}

func (p *RedisPublisher) PublishFeaturesBuilt(ctx context.Context, ev FeaturesBuilt) error {
	return p.publish(ctx, StreamFeaturesBuilt, ev)
}

func (p *RedisPublisher) publish(ctx context.Context, stream string, payload any) error {
	args, err := p.xaddArgs(stream, payload)
	if err != nil {
		return err
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return errors.Wrapf(err, "publish to %s", stream)
	}
	return nil
}

func (p *RedisPublisher) xaddArgs(stream string, payload any) (*redis.XAddArgs, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s event", stream)
	}
	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": p.now().Unix(),
		},
	}, nil
}
