// Package envstore holds the per-environment variable sets that share
// grants expose. Secret values are AES-GCM encrypted at rest under the
// configured master key; reads always return plaintext. The variable set's
// canonical order is insertion order.
package envstore

import (
	"context"
	"errors"

	"env.share/internal/crypto"
	"env.share/internal/models"
)

var ErrVariableNotFound = errors.New("environment variable not found")

// Source is the read-only surface the access evaluator consumes.
type Source interface {
	// Variables returns the environment's decrypted variable set in
	// canonical order. Unknown environments yield an empty set.
	Variables(ctx context.Context, environmentID string) ([]models.EnvVariable, error)
}

// Store adds the owner-side mutations.
type Store interface {
	Source

	// Put inserts the variable or, when the key exists, updates it in
	// place, preserving its position in the canonical order.
	Put(ctx context.Context, environmentID string, v models.EnvVariable) error

	Delete(ctx context.Context, environmentID, key string) error
	Close() error
}

// record is the at-rest form of one variable.
type record struct {
	Key      string
	Value    string // plaintext, non-secret variables only
	Cipher   []byte // sealed value, secret variables only
	IsSecret bool
}

func seal(v models.EnvVariable, masterKey string) (record, error) {
	rec := record{Key: v.Key, IsSecret: v.IsSecret}
	if !v.IsSecret {
		rec.Value = v.Value
		return rec, nil
	}
	cipher, err := crypto.Encrypt([]byte(v.Value), masterKey)
	if err != nil {
		return record{}, err
	}
	rec.Cipher = cipher
	return rec, nil
}

func open(rec record, masterKey string) (models.EnvVariable, error) {
	v := models.EnvVariable{Key: rec.Key, IsSecret: rec.IsSecret}
	if !rec.IsSecret {
		v.Value = rec.Value
		return v, nil
	}
	plain, err := crypto.Decrypt(rec.Cipher, masterKey)
	if err != nil {
		return models.EnvVariable{}, err
	}
	v.Value = string(plain)
	return v, nil
}

func openAll(recs []record, masterKey string) ([]models.EnvVariable, error) {
	vars := make([]models.EnvVariable, 0, len(recs))
	for _, rec := range recs {
		v, err := open(rec, masterKey)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}
