package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"env.share/internal/models"
)

var _ Store = (*RedisStore)(nil)

// consumeRetries bounds optimistic transaction restarts when concurrent
// consumers touch the same grant.
const consumeRetries = 3

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(options *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Save(ctx context.Context, grant *models.ShareGrant) error {
	data, err := encode(grant)
	if err != nil {
		return err
	}

	// Grants have no TTL: an expired grant is still readable for owner
	// display and audit, it just never admits access again.
	ok, err := r.client.SetNX(ctx, tokenKey(grant.Token), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateToken
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, idKey(grant.ID), grant.Token, 0)
		pipe.SAdd(ctx, envKey(grant.EnvironmentID), grant.Token)
		return nil
	})
	return err
}

func (r *RedisStore) GetByID(ctx context.Context, id string) (*models.ShareGrant, error) {
	token, err := r.client.Get(ctx, idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.GetByToken(ctx, token)
}

func (r *RedisStore) GetByToken(ctx context.Context, token string) (*models.ShareGrant, error) {
	data, err := r.client.Get(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

func (r *RedisStore) ListByEnvironment(ctx context.Context, environmentID string) ([]*models.ShareGrant, error) {
	tokens, err := r.client.SMembers(ctx, envKey(environmentID)).Result()
	if err != nil {
		return nil, err
	}

	var grants []*models.ShareGrant
	for _, token := range tokens {
		grant, err := r.GetByToken(ctx, token)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		grants = append(grants, grant)
	}
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].CreatedAt.After(grants[j].CreatedAt)
	})
	return grants, nil
}

func (r *RedisStore) Revoke(ctx context.Context, id string) error {
	token, err := r.client.Get(ctx, idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}

	key := tokenKey(token)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		grant, err := decode(data)
		if err != nil {
			return err
		}
		if !grant.IsActive {
			return nil // already revoked, idempotent
		}
		grant.IsActive = false

		newData, err := encode(grant)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)
			return nil
		})
		return err
	}

	for i := 0; i < consumeRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

// Consume runs the check-then-increment as an optimistic WATCH transaction
// on the grant key. A concurrent write between the read and the commit
// fails the transaction, which is retried with fresh counters, so quota can
// never be overshot.
func (r *RedisStore) Consume(ctx context.Context, token string, action models.Action, now time.Time) (*models.ShareGrant, error) {
	key := tokenKey(token)
	var consumed *models.ShareGrant

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		grant, err := decode(data)
		if err != nil {
			return err
		}

		if !grant.IsActive {
			return ErrRevoked
		}
		if grant.Expired(now) {
			return ErrExpired
		}
		if !grant.QuotaLeft(action) {
			return ErrExhausted
		}

		if action == models.ActionDownload {
			grant.DownloadCount++
		} else {
			grant.ViewCount++
			if grant.OneTime {
				grant.IsActive = false
			}
		}

		newData, err := encode(grant)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)
			return nil
		})
		if err != nil {
			return err
		}
		consumed = grant
		return nil
	}

	for i := 0; i < consumeRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return consumed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, redis.TxFailedErr
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Helpers

func tokenKey(token string) string {
	return "grant:token:" + token
}

func idKey(id string) string {
	return "grant:id:" + id
}

func envKey(environmentID string) string {
	return "grant:env:" + environmentID
}

func encode(grant *models.ShareGrant) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(grant); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (*models.ShareGrant, error) {
	var grant models.ShareGrant
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&grant); err != nil {
		return nil, err
	}
	return &grant, nil
}
