package store

import (
	"context"
	"encoding/json"
	"fmt"

	"artflow-sync/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisLog keeps the canvas operation log in a redis list per artifact.
// Appends are best effort; readers get entries in append order.
type RedisLog struct {
	client *redis.Client
}

func NewRedisLog(client *redis.Client) *RedisLog {
	return &RedisLog{client: client}
}

func logKey(artifactID string) string {
	return fmt.Sprintf("oplog:%s", artifactID)
}

func (l *RedisLog) Append(ctx context.Context, artifactID string, entry domain.LogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return l.client.RPush(ctx, logKey(artifactID), raw).Err()
}

func (l *RedisLog) Read(ctx context.Context, artifactID string) ([]domain.LogEntry, error) {
	raws, err := l.client.LRange(ctx, logKey(artifactID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.LogEntry, 0, len(raws))
	for _, raw := range raws {
		var entry domain.LogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			// One corrupt entry should not sink the whole replay.
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
