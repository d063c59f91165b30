package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const jobKeyPrefix = "job:"

// RedisStore はジョブ状態を Redis に保存します。
// プロセス再起動をまたいでレコードを参照したい場合に使用します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。ttl が 0 の場合は無期限に保持します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// Create は queued 状態の新規レコードを作成します。
func (s *RedisStore) Create(ctx context.Context) (*Record, error) {
	record := newRecord()
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err(); err != nil {
		return nil, err
	}
	return record, nil
}

// Get はレコードを取得します。
func (s *RedisStore) Get(ctx context.Context, jobID string) (*Record, error) {
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Update は楽観ロックで読み取り・変更・書き戻しを行います。
// 別クライアントの書き込みと競合した場合はリトライします。
func (s *RedisStore) Update(ctx context.Context, jobID string, mutate func(*Record)) error {
	key := jobKey(jobID)
	for {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					return ErrNotFound
				}
				return err
			}
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			if record.Terminal() {
				return ErrTerminal
			}
			mutate(&record)
			record.UpdatedAt = time.Now().UTC()
			payload, err := json.Marshal(&record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, redis.KeepTTL)
				return nil
			})
			return err
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
