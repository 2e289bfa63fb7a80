package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const (
	leasePrefix  = "persona:lease:"
	latestPrefix = "persona:latest:"
)

// compare-and-delete so an expired holder cannot drop someone else's lease
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Store struct {
	rdb      *redis.Client
	leaseTTL time.Duration
	cacheTTL time.Duration
}

func New(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewStore(rdb *redis.Client, leaseTTL, cacheTTL time.Duration) *Store {
	return &Store{rdb: rdb, leaseTTL: leaseTTL, cacheTTL: cacheTTL}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func leaseKey(userID uint64) string  { return leasePrefix + strconv.FormatUint(userID, 10) }
func latestKey(userID uint64) string { return latestPrefix + strconv.FormatUint(userID, 10) }

// TryLock takes the per-user build lease. The lease expires on its own after
// leaseTTL if the holder dies.
func (s *Store) TryLock(ctx context.Context, userID uint64) (func(), bool, error) {
	key := leaseKey(userID)
	token := ulid.Make().String()

	ok, err := s.rdb.SetNX(ctx, key, token, s.leaseTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		// the build ctx may already be done
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, s.rdb, []string{key}, token).Err()
	}, true, nil
}

func (s *Store) GetPersonaText(ctx context.Context, userID uint64) (string, bool, error) {
	v, err := s.rdb.Get(ctx, latestKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) SetPersonaText(ctx context.Context, userID uint64, text string) error {
	return s.rdb.Set(ctx, latestKey(userID), text, s.cacheTTL).Err()
}

func (s *Store) InvalidatePersona(ctx context.Context, userID uint64) error {
	return s.rdb.Del(ctx, latestKey(userID)).Err()
}
