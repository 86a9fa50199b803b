package hints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	bolt "go.etcd.io/bbolt"
)

// Store persists auto-generated overlays between runs. Get reports found=false
// when nothing is stored for root.
type Store interface {
	Get(ctx context.Context, root string) (h *HintFile, found bool, err error)
	Put(ctx context.Context, root string, h *HintFile) error
}

// MemoryStore keeps overlays for the process lifetime.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*HintFile
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*HintFile)}
}

func (s *MemoryStore) Get(_ context.Context, root string) (*HintFile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.items[root]
	return h, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, root string, h *HintFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[root] = h
	return nil
}

// stored is the persisted record; documents are re-validated on read.
type stored struct {
	Hints   json.RawMessage `json:"hints"`
	SavedAt time.Time       `json:"savedAt"`
}

func encode(h *HintFile) ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stored{Hints: data, SavedAt: time.Now().UTC()})
}

func decode(data []byte) (*HintFile, error) {
	var rec stored
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return ParseJSON(rec.Hints)
}

var overlaysBucket = []byte("overlays")

// BoltStore persists overlays in a bbolt database file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open overlay store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(overlaysBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create overlays bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, root string) (*HintFile, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(overlaysBucket).Get([]byte(root)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, false, err
	}
	h, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("stored overlay %s: %w", root, err)
	}
	return h, true, nil
}

func (s *BoltStore) Put(_ context.Context, root string, h *HintFile) error {
	data, err := encode(h)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(overlaysBucket).Put([]byte(root), data)
	})
}

// Close closes the database file.
func (s *BoltStore) Close() error { return s.db.Close() }

// RedisStore persists overlays in Redis under Prefix+root.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DefaultRedisPrefix namespaces overlay keys.
const DefaultRedisPrefix = "autotool:overlay:"

// NewRedisStore wraps client. A zero ttl keeps entries until overwritten.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisStoreFromURL parses a redis:// URL and connects lazily.
func NewRedisStoreFromURL(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), "", ttl), nil
}

func (s *RedisStore) Get(ctx context.Context, root string) (*HintFile, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+root).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	h, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("stored overlay %s: %w", root, err)
	}
	return h, true, nil
}

func (s *RedisStore) Put(ctx context.Context, root string, h *HintFile) error {
	data, err := encode(h)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+root, data, s.ttl).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error { return s.client.Close() }
