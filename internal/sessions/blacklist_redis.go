package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist records revoked access tokens until they would have expired
// anyway. A nil client disables it: nothing is stored and no token is
// reported as revoked.
type Blacklist struct {
	client redis.UniversalClient
	prefix string
}

func NewBlacklist(client redis.UniversalClient) *Blacklist {
	return &Blacklist{client: client, prefix: "blacklist:access:"}
}

// Revoke stores token with the given TTL.
func (b *Blacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if b == nil || b.client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return b.client.Set(ctx, b.prefix+token, "1", ttl).Err()
}

// IsRevoked reports whether token is in the blacklist.
func (b *Blacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	if b == nil || b.client == nil {
		return false, nil
	}
	exists, err := b.client.Exists(ctx, b.prefix+token).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
