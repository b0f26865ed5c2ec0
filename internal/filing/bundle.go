package filing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"edgarqa/internal/domain"
)

// BundlePath is where the chunk bundle of id is stored, next to its record.
func BundlePath(dataDir string, id domain.Identity) string {
	return filepath.Join(Dir(dataDir, id), fmt.Sprintf("%s_%d_chunks.json", id.CompanyID, id.FiscalYear))
}

// FileBundleStore keeps chunk bundles as JSON files under a data directory.
type FileBundleStore struct {
	DataDir string
}

func (s FileBundleStore) Load(_ context.Context, id domain.Identity) (*domain.Filing, bool, error) {
	data, err := os.ReadFile(BundlePath(s.DataDir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return decodeBundle(data, id)
}

func (s FileBundleStore) Save(_ context.Context, f *domain.Filing) error {
	return writeJSON(BundlePath(s.DataDir, f.Identity), f)
}

const DefaultKeyPrefix = "edgarqa:bundle:"

// RedisBundleStore keeps chunk bundles in Redis.
type RedisBundleStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBundleStore wraps client. A zero ttl keeps bundles forever.
func NewRedisBundleStore(client *redis.Client, prefix string, ttl time.Duration) *RedisBundleStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisBundleStore{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key of id's bundle.
func (s *RedisBundleStore) Key(id domain.Identity) string {
	return fmt.Sprintf("%s%s:%d:%s", s.prefix, id.CompanyID, id.FiscalYear, id.Split)
}

func (s *RedisBundleStore) Load(ctx context.Context, id domain.Identity) (*domain.Filing, bool, error) {
	data, err := s.client.Get(ctx, s.Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load bundle %s: %w", id, err)
	}
	return decodeBundle(data, id)
}

func (s *RedisBundleStore) Save(ctx context.Context, f *domain.Filing) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.Key(f.Identity), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save bundle %s: %w", f.Identity, err)
	}
	return nil
}

func decodeBundle(data []byte, id domain.Identity) (*domain.Filing, bool, error) {
	var f domain.Filing
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false, fmt.Errorf("parse bundle %s: %w", id, err)
	}
	if f.Identity != id {
		return nil, false, fmt.Errorf("bundle identity %s does not match %s", f.Identity, id)
	}
	return &f, true, nil
}
