package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// RedisKey is the Redis SET the gate reads the block-list from.
const RedisKey = "gate:banned_words"

// CachedWordStore serves the block-list from a Redis SET backed by the
// banned_words table in Postgres. Either side may be nil.
type CachedWordStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewCachedWordStore(db *pgxpool.Pool, rdb *redis.Client) *CachedWordStore {
	return &CachedWordStore{db: db, redis: rdb}
}

// BannedWords reads the Redis SET. When the key is missing or Redis fails,
// the list is read from Postgres and, on a miss, republished to Redis.
func (s *CachedWordStore) BannedWords(ctx context.Context) ([]string, error) {
	if s.redis == nil && s.db == nil {
		return nil, ErrNoBackend
	}

	redisMiss := false
	if s.redis != nil {
		words, err := s.redis.SMembers(ctx, RedisKey).Result()
		switch {
		case err != nil:
			slog.Warn("redis block-list read failed", "error", err)
		case len(words) > 0:
			return words, nil
		default:
			redisMiss = true
		}
		if s.db == nil {
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", RedisKey, err)
			}
			return nil, nil
		}
	}

	words, err := s.listDB(ctx)
	if err != nil {
		return nil, err
	}
	if redisMiss && len(words) > 0 {
		if err := s.publish(ctx, words); err != nil {
			slog.Warn("redis block-list republish failed", "error", err)
		}
	}
	return words, nil
}

// ListWords returns the source-of-truth list.
func (s *CachedWordStore) ListWords(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return s.BannedWords(ctx)
	}
	return s.listDB(ctx)
}

func (s *CachedWordStore) listDB(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT word FROM banned_words ORDER BY word`)
	if err != nil {
		return nil, fmt.Errorf("query banned_words: %w", err)
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan banned_words: %w", err)
		}
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate banned_words: %w", err)
	}
	return words, nil
}

// AddWord stores word and adds it to the Redis SET. It reports whether the
// word was new.
func (s *CachedWordStore) AddWord(ctx context.Context, word string) (bool, error) {
	w, err := CleanWord(word)
	if err != nil {
		return false, err
	}
	if s.redis == nil && s.db == nil {
		return false, ErrNoBackend
	}

	added := false
	if s.db != nil {
		tag, err := s.db.Exec(ctx, `INSERT INTO banned_words (word) VALUES ($1) ON CONFLICT (word) DO NOTHING`, w)
		if err != nil {
			return false, fmt.Errorf("insert banned word: %w", err)
		}
		added = tag.RowsAffected() > 0
	}
	if s.redis != nil {
		n, err := s.redis.SAdd(ctx, RedisKey, w).Result()
		if err != nil {
			return added, fmt.Errorf("redis sadd: %w", err)
		}
		if s.db == nil {
			added = n > 0
		}
	}
	return added, nil
}

// RemoveWord deletes word from both stores. It reports whether it existed.
func (s *CachedWordStore) RemoveWord(ctx context.Context, word string) (bool, error) {
	w, err := CleanWord(word)
	if err != nil {
		return false, err
	}
	if s.redis == nil && s.db == nil {
		return false, ErrNoBackend
	}

	removed := false
	if s.db != nil {
		tag, err := s.db.Exec(ctx, `DELETE FROM banned_words WHERE word = $1`, w)
		if err != nil {
			return false, fmt.Errorf("delete banned word: %w", err)
		}
		removed = tag.RowsAffected() > 0
	}
	if s.redis != nil {
		n, err := s.redis.SRem(ctx, RedisKey, w).Result()
		if err != nil {
			return removed, fmt.Errorf("redis srem: %w", err)
		}
		if s.db == nil {
			removed = n > 0
		}
	}
	return removed, nil
}

// Sync rebuilds the Redis SET from Postgres and returns the word count.
func (s *CachedWordStore) Sync(ctx context.Context) (int, error) {
	if s.db == nil || s.redis == nil {
		return 0, errors.New("sync needs both postgres and redis")
	}
	words, err := s.listDB(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.publish(ctx, words); err != nil {
		return 0, err
	}
	return len(words), nil
}

// publish replaces the Redis SET atomically.
func (s *CachedWordStore) publish(ctx context.Context, words []string) error {
	members := make([]interface{}, len(words))
	for i, w := range words {
		members[i] = w
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, RedisKey)
		if len(members) > 0 {
			pipe.SAdd(ctx, RedisKey, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", RedisKey, err)
	}
	return nil
}
