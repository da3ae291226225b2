package jobstore

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"cronbot/internal/job"
	logx "cronbot/pkg/logx"
)

const defaultRedisPrefix = "cronbot:"

// Redis keys (with the configured prefix):
//
//	job:<id>  JSON-encoded job
//	jobs      ZSET of ids scored by insertion sequence
//	seq       insertion counter
type redisStore struct {
	rdb    redis.UniversalClient
	prefix string
	owned  bool
}

// NewRedis wraps an existing client. The caller keeps ownership of rdb.
func NewRedis(rdb redis.UniversalClient, prefix string) Store {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{rdb: rdb, prefix: prefix}
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Addr),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	st := NewRedis(rdb, cfg.Prefix).(*redisStore)
	st.owned = true
	log.Debug("redis store opened", logx.String("addr", cfg.Addr), logx.String("prefix", st.prefix))
	return st, nil
}

func (s *redisStore) jobKey(id string) string { return s.prefix + "job:" + id }
func (s *redisStore) indexKey() string        { return s.prefix + "jobs" }
func (s *redisStore) seqKey() string          { return s.prefix + "seq" }

func (s *redisStore) Put(ctx context.Context, j job.Job) error {
	b, err := job.Encode(j)
	if err != nil {
		return err
	}
	// Existing members keep their original score.
	_, err = s.rdb.ZScore(ctx, s.indexKey(), j.ID).Result()
	isNew := errors.Is(err, redis.Nil)
	if err != nil && !isNew {
		return err
	}

	var seq int64
	if isNew {
		seq, err = s.rdb.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return err
		}
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.jobKey(j.ID), b, 0)
	if isNew {
		pipe.ZAddNX(ctx, s.indexKey(), redis.Z{Score: float64(seq), Member: j.ID})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Get(ctx context.Context, id string) (job.Job, error) {
	b, err := s.rdb.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return job.Job{}, ErrNotFound
	}
	if err != nil {
		return job.Job{}, err
	}
	return job.Decode(b)
}

func (s *redisStore) Delete(ctx context.Context, id string) (bool, error) {
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, s.jobKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

func (s *redisStore) List(ctx context.Context) ([]job.Job, error) {
	ids, err := s.rdb.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]job.Job, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Index entry without a body; skip.
			continue
		}
		j, err := job.Decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func (s *redisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}
