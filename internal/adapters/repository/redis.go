package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/studypulse/internal/domain/model"
)

// A failed WATCH means another writer committed, so n concurrent writers need at
// most n-1 retries each.
const defaultRedisMaxRetries = 32

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, e.g. "studypulse:".
	Prefix string
	// MaxRetries bounds optimistic transaction retries. Zero means the default.
	MaxRetries int
}

// RedisStore keeps each study as one JSON document.
//
// Keys:
//
//	{prefix}study:{id}  JSON encoded model.Study
//	{prefix}studies     set of study ids
//
// Writes read-modify-write the document under WATCH so concurrent workers
// never lose each other's ratings.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultRedisMaxRetries
	}
	return &RedisStore{client: client, prefix: cfg.Prefix, maxRetries: retries}, nil
}

func (s *RedisStore) studyKey(id string) string { return s.prefix + "study:" + id }
func (s *RedisStore) indexKey() string          { return s.prefix + "studies" }

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, studyID string) (study model.Study, err error) {
	defer func(start time.Time) { observe(BackendRedis, "get", start, err) }(time.Now())

	raw, err := s.client.Get(ctx, s.studyKey(studyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Study{}, studyNotFound(studyID)
	}
	if err != nil {
		return model.Study{}, fmt.Errorf("redis get %s: %w", studyID, err)
	}
	if err := json.Unmarshal(raw, &study); err != nil {
		return model.Study{}, fmt.Errorf("decode study %s: %w", studyID, err)
	}
	return study, nil
}

// List implements Store.List.
func (s *RedisStore) List(ctx context.Context) (refs []model.StudyRef, err error) {
	defer func(start time.Time) { observe(BackendRedis, "list", start, err) }(time.Now())

	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	refs = make([]model.StudyRef, 0, len(ids))
	if len(ids) == 0 {
		return refs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.studyKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // removed between SMEMBERS and MGET
		}
		var st model.Study
		if err := json.Unmarshal([]byte(str), &st); err != nil {
			return nil, fmt.Errorf("decode study: %w", err)
		}
		refs = append(refs, st.Ref())
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// AppendRating implements Store.AppendRating.
func (s *RedisStore) AppendRating(ctx context.Context, studyID, participantID string, ev model.RatingEvent) (err error) {
	defer func(start time.Time) { observe(BackendRedis, "append_rating", start, err) }(time.Now())

	return s.update(ctx, studyID, func(st *model.Study) (bool, error) {
		if err := appendRating(st, participantID, ev); err != nil {
			return false, err
		}
		return true, nil
	})
}

// MarkCompleted implements Store.MarkCompleted.
func (s *RedisStore) MarkCompleted(ctx context.Context, studyID, participantID, completedAt string) (err error) {
	defer func(start time.Time) { observe(BackendRedis, "mark_completed", start, err) }(time.Now())

	return s.update(ctx, studyID, func(st *model.Study) (bool, error) {
		return markCompleted(st, participantID, completedAt)
	})
}

// update runs fn against the current document inside WATCH/MULTI and retries
// when another writer got there first. fn reports whether it changed anything.
func (s *RedisStore) update(ctx context.Context, studyID string, fn func(*model.Study) (bool, error)) error {
	key := s.studyKey(studyID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return studyNotFound(studyID)
		}
		if err != nil {
			return err
		}

		var st model.Study
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("decode study %s: %w", studyID, err)
		}
		changed, err := fn(&st)
		if err != nil || !changed {
			return err
		}

		data, err := json.Marshal(&st)
		if err != nil {
			return fmt.Errorf("encode study %s: %w", studyID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("study %q after %d attempts: %w", studyID, s.maxRetries, ErrConflict)
}

// Seed implements Store.Seed. Each study is written with SETNX so a concurrent
// seeder never overwrites ingested ratings.
func (s *RedisStore) Seed(ctx context.Context, studies []model.Study) (added int, err error) {
	defer func(start time.Time) { observe(BackendRedis, "seed", start, err) }(time.Now())

	for i := range studies {
		data, err := json.Marshal(&studies[i])
		if err != nil {
			return added, fmt.Errorf("encode study %s: %w", studies[i].ID, err)
		}
		ok, err := s.client.SetNX(ctx, s.studyKey(studies[i].ID), data, 0).Result()
		if err != nil {
			return added, fmt.Errorf("redis setnx %s: %w", studies[i].ID, err)
		}
		if err := s.client.SAdd(ctx, s.indexKey(), studies[i].ID).Err(); err != nil {
			return added, fmt.Errorf("redis sadd %s: %w", studies[i].ID, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Count implements Store.Count. Errors count as zero studies.
func (s *RedisStore) Count(ctx context.Context) int {
	n, err := s.client.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		observe(BackendRedis, "count", time.Now(), err)
		return 0
	}
	return int(n)
}
