// Package storage 已结束会话记录的持久化
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/palemoky/turnstile/internal/game/session"
)

const (
	// Redis key 前缀
	recordKeyPrefix  = "record:"
	historyKeyPrefix = "history:"

	defaultRecordTTL = 7 * 24 * time.Hour
)

// RedisStore 把会话记录保存为 JSON，并按游戏类型维护按结束时间排序的历史
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 存储，ttl <= 0 时使用默认保留时长
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRecordTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func recordKey(id string) string { return recordKeyPrefix + id }

func historyKey(gameType string) string {
	if gameType == "" {
		gameType = "_"
	}
	return historyKeyPrefix + gameType
}

// Save 实现 session.PersistenceSink
func (rs *RedisStore) Save(ctx context.Context, rec session.Snapshot) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化会话记录失败: %w", err)
	}

	endedAt := rec.EndedAt
	if endedAt.IsZero() {
		endedAt = rec.UpdatedAt
	}

	_, err = rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(rec.ID), data, rs.ttl)
		pipe.ZAdd(ctx, historyKey(rec.Config.GameType), redis.Z{
			Score:  float64(endedAt.UnixMilli()),
			Member: rec.ID,
		})
		return nil
	})
	return err
}

// Load 读取会话记录，不存在时返回 nil, nil
func (rs *RedisStore) Load(ctx context.Context, id string) (*session.Snapshot, error) {
	data, err := rs.client.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec session.Snapshot
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("反序列化会话记录失败: %w", err)
	}
	return &rec, nil
}

// History 返回某个游戏类型最近结束的会话 ID，新的在前
//
// 记录过期后 ID 会从历史中清理。
func (rs *RedisStore) History(ctx context.Context, gameType string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	key := historyKey(gameType)
	ids, err := rs.client.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}
	exists, err := rs.existing(ctx, keys)
	if err != nil {
		return nil, err
	}

	live := make([]string, 0, len(ids))
	var stale []any
	for i, id := range ids {
		if exists[i] {
			live = append(live, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := rs.client.ZRem(ctx, key, stale...).Err(); err != nil {
			return nil, err
		}
	}
	return live, nil
}

func (rs *RedisStore) existing(ctx context.Context, keys []string) ([]bool, error) {
	pipe := rs.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Exists(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]bool, len(keys))
	for i, c := range cmds {
		out[i] = c.Val() > 0
	}
	return out, nil
}

// Delete 删除会话记录及其历史条目
func (rs *RedisStore) Delete(ctx context.Context, rec session.Snapshot) error {
	_, err := rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(rec.ID))
		pipe.ZRem(ctx, historyKey(rec.Config.GameType), rec.ID)
		return nil
	})
	return err
}

var _ session.PersistenceSink = (*RedisStore)(nil)
