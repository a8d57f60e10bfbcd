package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// PreferenceStore keeps the preferences document as a plain string key with no expiry.
type PreferenceStore struct {
	client *Client
	key    string
}

func NewPreferenceStore(client *Client, key string) *PreferenceStore {
	return &PreferenceStore{client: client, key: key}
}

func (s *PreferenceStore) Load(ctx context.Context) ([]byte, bool, error) {
	data, err := s.client.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load preferences %q: %w", s.key, err)
	}
	return data, true, nil
}

func (s *PreferenceStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save preferences %q: %w", s.key, err)
	}
	return nil
}
