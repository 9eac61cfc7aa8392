package rediscache

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// NotificationQueue — очереди уведомлений per-user, которые наполняет
// notify-worker. Список капится, старые записи вытесняются.
type NotificationQueue struct {
	c   *redis.Client
	cap int64
}

func NewNotificationQueue(addr string, capPerUser int64) *NotificationQueue {
	if capPerUser <= 0 {
		capPerUser = 100
	}
	return &NotificationQueue{
		c:   redis.NewClient(&redis.Options{Addr: addr}),
		cap: capPerUser,
	}
}

func (q *NotificationQueue) Push(ctx context.Context, userID string, payload []byte) error {
	key := "notifications:" + userID
	pipe := q.c.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, q.cap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis push notification")
	}
	return nil
}

func (q *NotificationQueue) Peek(ctx context.Context, userID string, n int64) ([][]byte, error) {
	vals, err := q.c.LRange(ctx, "notifications:"+userID, 0, n-1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis peek notifications")
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out, nil
}
