// Package redis stores each analysis as a JSON value under
// contract_analyses:<token>.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

const (
	keyPrefix  = "contract_analyses:"
	maxRetries = 5
)

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx2).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

type AnalysisRepository struct {
	client *redis.Client
}

func NewAnalysisRepository(client *redis.Client) *AnalysisRepository {
	return &AnalysisRepository{client: client}
}

func key(token domain.Token) string { return keyPrefix + string(token) }

func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Analysis) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key(a.Token), data, 0).Err()
}

func (r *AnalysisRepository) Get(ctx context.Context, token domain.Token) (*domain.Analysis, error) {
	return load(ctx, r.client, token)
}

// Update is an optimistic WATCH/MULTI transaction, retried when another
// writer touches the key first.
func (r *AnalysisRepository) Update(ctx context.Context, token domain.Token, fn func(*domain.Analysis) error) error {
	k := key(token)
	txf := func(tx *redis.Tx) error {
		a, err := load(ctx, tx, token)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := r.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: %w", token, redis.TxFailedErr)
}

func (r *AnalysisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func load(ctx context.Context, c redis.Cmdable, token domain.Token) (*domain.Analysis, error) {
	data, err := c.Get(ctx, key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	var a domain.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode %s: %w", token, err)
	}
	return &a, nil
}
