package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/nurox-dashboard/internal/queue"
)

// DefaultAuditKey is the Redis list holding recent auth events, newest first.
const DefaultAuditKey = "audit:auth"

// AuditLog keeps a bounded list of recent auth events in Redis.
type AuditLog struct {
	RDB  *redis.Client
	Key  string
	Size int64
}

func NewAuditLog(rdb *redis.Client, size int64) *AuditLog {
	if size <= 0 {
		size = 1000
	}
	return &AuditLog{RDB: rdb, Key: DefaultAuditKey, Size: size}
}

// Append pushes ev onto the list and trims it to Size entries.
func (l *AuditLog) Append(ctx context.Context, ev queue.AuthEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := l.RDB.TxPipeline()
	pipe.LPush(ctx, l.Key, body)
	pipe.LTrim(ctx, l.Key, 0, l.Size-1)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n events, newest first.  Entries that fail to decode
// are skipped.
func (l *AuditLog) Recent(ctx context.Context, n int64) ([]queue.AuthEvent, error) {
	if n <= 0 || n > l.Size {
		n = l.Size
	}
	raw, err := l.RDB.LRange(ctx, l.Key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("audit lrange: %w", err)
	}
	return decodeEvents(raw), nil
}

func decodeEvents(raw []string) []queue.AuthEvent {
	out := make([]queue.AuthEvent, 0, len(raw))
	for _, s := range raw {
		var ev queue.AuthEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}
