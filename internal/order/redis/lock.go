package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ms-rental/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockBusy means another request held the vehicle lock for the whole wait budget.
var ErrLockBusy = errors.New("vehicle schedule is locked by another request")

const keyPrefix = "vehicle_lock:"

// release deletes the key only while it still belongs to the caller.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// VehicleLock serializes create-time schedule checks for one vehicle across service instances.
type VehicleLock struct {
	Client  *redis.Client
	Logger  *logger.Logger
	TTL     time.Duration
	MaxWait time.Duration
}

func NewVehicleLock(client *redis.Client, log *logger.Logger, ttl, maxWait time.Duration) *VehicleLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 3 * time.Second
	}
	return &VehicleLock{Client: client, Logger: log, TTL: ttl, MaxWait: maxWait}
}

func key(vehicleID int64) string {
	return keyPrefix + strconv.FormatInt(vehicleID, 10)
}

// TryLock makes one SetNX attempt.
func (l *VehicleLock) TryLock(ctx context.Context, vehicleID int64, owner string) (bool, error) {
	return l.Client.SetNX(ctx, key(vehicleID), owner, l.TTL).Result()
}

// Lock waits up to MaxWait for the vehicle lock and returns the owner token to pass to Unlock.
func (l *VehicleLock) Lock(ctx context.Context, vehicleID int64) (string, error) {
	owner := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = l.MaxWait
	policy.Reset()

	op := func() error {
		ok, err := l.TryLock(ctx, vehicleID, owner)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquire vehicle lock %d: %w", vehicleID, err))
		}
		if !ok {
			return ErrLockBusy
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		if l.Logger != nil {
			l.Logger.Warn("REDIS", fmt.Sprintf("vehicle %d lock not acquired: %v", vehicleID, err))
		}
		return "", err
	}
	return owner, nil
}

// Unlock releases the lock if owner still holds it. An expired or foreign lock is left alone.
func (l *VehicleLock) Unlock(ctx context.Context, vehicleID int64, owner string) error {
	if err := release.Run(ctx, l.Client, []string{key(vehicleID)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release vehicle lock %d: %w", vehicleID, err)
	}
	return nil
}

// IsLocked reports whether any request currently holds the vehicle lock.
func (l *VehicleLock) IsLocked(ctx context.Context, vehicleID int64) (bool, error) {
	n, err := l.Client.Exists(ctx, key(vehicleID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
