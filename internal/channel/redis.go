package channel

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisRecipients implements Recipients over a Redis set of chat ids.
type RedisRecipients struct {
	client *redis.Client
	setKey string
}

// NewRedisRecipients creates a recipient registry backed by the given
// Redis set.
func NewRedisRecipients(client *redis.Client, setKey string) *RedisRecipients {
	return &RedisRecipients{client: client, setKey: setKey}
}

// IDs returns all current members of the set. Members that are not
// numeric are skipped with a log line rather than failing the whole
// snapshot.
func (r *RedisRecipients) IDs(ctx context.Context) ([]int64, error) {
	members, err := r.client.SMembers(ctx, r.setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recipient set %s: %w", r.setKey, err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			log.Printf("[Recipients Set:%s] Skipping non-numeric member %q", r.setKey, member)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
