package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orchids/event-stream/internal/domain"
)

// Store is the narrow contract for an external priority backing store.
// Implementations keep the same ordering law as the in-process queue:
// priority first, arrival order within equal priority.
type Store interface {
	Push(ctx context.Context, queueName string, msg *domain.QueuedMessage) error
	Pop(ctx context.Context, queueName string, timeout time.Duration) (*domain.QueuedMessage, error)
	PopBatch(ctx context.Context, queueName string, batchSize int) ([]*domain.QueuedMessage, error)
}

// RedisStore backs a priority queue with a Redis sorted set plus a TTL'd
// value per message. The member encodes the arrival timestamp so equal
// scores tie-break lexicographically in arrival order.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func pendingKey(queueName string) string {
	return fmt.Sprintf("queue:%s:pending", queueName)
}

func messageKey(queueName, id string) string {
	return fmt.Sprintf("queue:%s:msg:%s", queueName, id)
}

func encodeMember(msg *domain.QueuedMessage) string {
	return fmt.Sprintf("%020d:%s", msg.EnqueuedAt.UnixNano(), msg.ID)
}

func decodeMember(member string) (string, error) {
	parts := strings.SplitN(member, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", fmt.Errorf("malformed queue member %q", member)
	}
	return parts[1], nil
}

func (s *RedisStore) Push(ctx context.Context, queueName string, msg *domain.QueuedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal queued message: %w", err)
	}

	ttl := msg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, messageKey(queueName, msg.ID), data, ttl)
	pipe.ZAdd(ctx, pendingKey(queueName), redis.Z{
		Score:  float64(msg.Priority),
		Member: encodeMember(msg),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push message to store: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the highest-priority entry. A nil message
// with nil error means the queue stayed empty for the full window.
func (s *RedisStore) Pop(ctx context.Context, queueName string, timeout time.Duration) (*domain.QueuedMessage, error) {
	result, err := s.client.BZPopMin(ctx, timeout, pendingKey(queueName)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from store: %w", err)
	}

	member, ok := result.Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected member type %T", result.Member)
	}
	return s.fetchAndDelete(ctx, queueName, member)
}

// PopBatch drains up to batchSize entries without waiting. Entries whose
// value already expired are skipped.
func (s *RedisStore) PopBatch(ctx context.Context, queueName string, batchSize int) ([]*domain.QueuedMessage, error) {
	popped, err := s.client.ZPopMin(ctx, pendingKey(queueName), int64(batchSize)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to pop batch from store: %w", err)
	}

	msgs := make([]*domain.QueuedMessage, 0, len(popped))
	for _, z := range popped {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		msg, err := s.fetchAndDelete(ctx, queueName, member)
		if err != nil {
			return msgs, err
		}
		if msg != nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

func (s *RedisStore) fetchAndDelete(ctx context.Context, queueName, member string) (*domain.QueuedMessage, error) {
	id, err := decodeMember(member)
	if err != nil {
		return nil, err
	}

	key := messageKey(queueName, id)
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		// Value TTL expired between push and pop; the entry is gone.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", id, err)
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("failed to delete message %s: %w", id, err)
	}

	var msg domain.QueuedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", id, err)
	}
	return &msg, nil
}
