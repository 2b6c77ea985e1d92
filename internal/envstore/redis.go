package envstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"env.share/internal/models"
)

var _ Store = (*RedisStore)(nil)

const updateRetries = 3

type RedisStore struct {
	client    *redis.Client
	masterKey string
}

func NewRedisStore(options *redis.Options, masterKey string) (*RedisStore, error) {
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, masterKey: masterKey}, nil
}

func (r *RedisStore) Variables(ctx context.Context, environmentID string) ([]models.EnvVariable, error) {
	recs, err := r.load(ctx, environmentID)
	if err != nil {
		return nil, err
	}
	return openAll(recs, r.masterKey)
}

func (r *RedisStore) Put(ctx context.Context, environmentID string, v models.EnvVariable) error {
	rec, err := seal(v, r.masterKey)
	if err != nil {
		return err
	}

	return r.update(ctx, environmentID, func(recs []record) ([]record, error) {
		for i := range recs {
			if recs[i].Key == v.Key {
				recs[i] = rec
				return recs, nil
			}
		}
		return append(recs, rec), nil
	})
}

func (r *RedisStore) Delete(ctx context.Context, environmentID, key string) error {
	return r.update(ctx, environmentID, func(recs []record) ([]record, error) {
		for i := range recs {
			if recs[i].Key == key {
				return append(recs[:i], recs[i+1:]...), nil
			}
		}
		return nil, ErrVariableNotFound
	})
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// update applies fn to the environment's record list inside a WATCH
// transaction so concurrent owner edits cannot lose writes.
func (r *RedisStore) update(ctx context.Context, environmentID string, fn func([]record) ([]record, error)) error {
	key := varsKey(environmentID)

	txf := func(tx *redis.Tx) error {
		var recs []record
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if recs, err = decodeRecords(data); err != nil {
				return err
			}
		}

		updated, err := fn(recs)
		if err != nil {
			return err
		}

		newData, err := encodeRecords(updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (r *RedisStore) load(ctx context.Context, environmentID string) ([]record, error) {
	data, err := r.client.Get(ctx, varsKey(environmentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodeRecords(data)
}

func varsKey(environmentID string) string {
	return "env:vars:" + environmentID
}

func encodeRecords(recs []record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(recs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecords(data []byte) ([]record, error) {
	var recs []record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}
