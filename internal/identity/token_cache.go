package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// TokenKey is where the service-account token is cached in Redis.
	TokenKey = "identity:m2m_token"
	// TokenExpiryBuffer is how long before expiry a cached token is treated as stale.
	TokenExpiryBuffer = 60 * time.Second
)

// CachedToken is a token with its expiry time.
type CachedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (tc *CachedToken) IsValid(now time.Time) bool {
	if tc == nil || tc.Token == "" {
		return false
	}
	return now.Add(TokenExpiryBuffer).Before(tc.ExpiresAt)
}

// RedisTokenCache shares the service-account token between replicas.
type RedisTokenCache struct {
	Client *redis.Client
	Now    func() time.Time
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{Client: client, Now: time.Now}
}

// GetToken returns nil without error when no usable token is cached.
func (c *RedisTokenCache) GetToken(ctx context.Context) (*CachedToken, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	raw, err := c.Client.Get(ctx, TokenKey).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}

	var cached CachedToken
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token cache: %w", err)
	}
	if !cached.IsValid(c.Now()) {
		return nil, nil
	}
	return &cached, nil
}

func (c *RedisTokenCache) SetToken(ctx context.Context, token string, expiresIn time.Duration) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	raw, err := json.Marshal(&CachedToken{Token: token, ExpiresAt: c.Now().Add(expiresIn)})
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}
	// redis keeps it a little longer than the token lives, for clock skew
	if err := c.Client.Set(ctx, TokenKey, raw, expiresIn+TokenExpiryBuffer).Err(); err != nil {
		return fmt.Errorf("failed to store token in Redis: %w", err)
	}
	return nil
}
