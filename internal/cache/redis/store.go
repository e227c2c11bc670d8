// Package redis 进度快照镜像
//
// 将最近一次派生的进度快照写入 Redis 哈希，供运维面板等
// 外部消费方读取。只镜像当前状态（带 TTL），不保存历史 Run：
// 快照始终可以由内存事件日志重放得出。
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"songwatch/internal/shared/model"
)

const (
	// keyProgress 进度快照 key 前缀
	keyProgress = "songwatch:progress:"

	// ttlProgress 快照过期时间：监控器停止刷新后自动清理
	ttlProgress = 10 * time.Minute
)

// Store Redis 快照镜像存储
type Store struct {
	client *redis.Client
}

// NewStore 创建镜像存储
func NewStore(addr, password string, db int) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewStoreWithClient 使用现有客户端创建（测试用）
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Ping 探活
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭连接
func (s *Store) Close() error {
	return s.client.Close()
}

// SetProgress 写入指定 Run 的进度快照
//
// 哈希字段为面板常用的标量，完整快照以 JSON 存入 snapshot 字段。
// 写入与续期在同一 pipeline 中完成。
func (s *Store) SetProgress(ctx context.Context, runID string, snap *model.ProgressSnapshot) error {
	key := keyProgress + runID

	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	data := map[string]interface{}{
		"progress":     snap.ProgressPercentage,
		"current_node": snap.CurrentNode,
		"is_running":   strconv.FormatBool(snap.IsRunning),
		"is_complete":  strconv.FormatBool(snap.IsComplete),
		"is_failed":    strconv.FormatBool(snap.IsFailed),
		"issue_count":  len(snap.Issues),
		"snapshot":     string(snapJSON),
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, ttlProgress)
	_, err = pipe.Exec(ctx)

	return err
}

// GetProgress 读取指定 Run 的进度快照
//
// key 不存在时返回 (nil, nil)。
func (s *Store) GetProgress(ctx context.Context, runID string) (*model.ProgressSnapshot, error) {
	key := keyProgress + runID

	snapJSON, err := s.client.HGet(ctx, key, "snapshot").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap model.ProgressSnapshot
	if err := json.Unmarshal([]byte(snapJSON), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// DeleteProgress 删除指定 Run 的进度快照
func (s *Store) DeleteProgress(ctx context.Context, runID string) error {
	return s.client.Del(ctx, keyProgress+runID).Err()
}
