package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

// The cache helpers are best-effort and not tied to a request.
var bg = context.Background()

// GetRedisDB returns nil until ConnectRedisWithRetry or SetRedisClient ran.
// Every helper below is a no-op while redis is absent.
func GetRedisDB() *redis.Client {
	return rdb
}

// getRedisString reports a missing key as found=false without error.
func getRedisString(key string) (string, bool, error) {
	if rdb == nil {
		return "", false, nil
	}
	val, err := rdb.Get(bg, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return val, true, nil
}

// GetRedisObject decodes the JSON stored at key into dest.
func GetRedisObject(key string, dest interface{}) (bool, error) {
	val, found, err := getRedisString(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func GetRedisValue(key string) (string, bool, error) {
	return getRedisString(key)
}

func SetRedisObject(key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(bg, key, raw, exp).Err()
}

func SetRedisValue(key string, value string, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	return rdb.Set(bg, key, value, exp).Err()
}

// AddRedisSet tracks keys that are removed together, e.g. all session tokens of a user.
func AddRedisSet(setKey string, member string) error {
	if rdb == nil {
		return nil
	}
	return rdb.SAdd(bg, setKey, member).Err()
}

func GetRedisSetMembers(setKey string) ([]string, error) {
	if rdb == nil {
		return nil, nil
	}
	return rdb.SMembers(bg, setKey).Result()
}

func RemoveRedisSetMember(setKey string, member string) error {
	if rdb == nil {
		return nil
	}
	return rdb.SRem(bg, setKey, member).Err()
}

func RemoveRedisKey(keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil
	}
	return rdb.Del(bg, keys...).Err()
}

// RemoveRedisPattern deletes every key matching pattern, e.g. "SegmentTypes:*"
// after a write, in batches of 100.
func RemoveRedisPattern(pattern string) error {
	if rdb == nil {
		return nil
	}
	iter := rdb.Scan(bg, 0, pattern, 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(bg) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := rdb.Del(bg, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return RemoveRedisKey(batch...)
}

// ObtainLock takes a short redis lock. ok is false when redis is not
// connected, in which case callers rely on their database row locks alone.
func ObtainLock(c context.Context, key string, ttl time.Duration) (lock *redislock.Lock, ok bool, err error) {
	if locker == nil {
		return nil, false, nil
	}
	lock, err = locker.Obtain(c, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 30),
	})
	if err != nil {
		return nil, false, err
	}
	return lock, true, nil
}

// SetRedisClient wires an existing client, for tests and tools.
func SetRedisClient(c *redis.Client) {
	rdb = c
	if c == nil {
		locker = nil
		return
	}
	locker = redislock.New(c)
}

func init() {
	godotenv.Load()
}

// ConnectRedisWithRetry connects the cache and lock clients, retrying with
// backoff until redis answers.
func ConnectRedisWithRetry() {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
		log.Printf("REDIS_ADDRESS not set; defaulting to %s", redisAddr)
	}
	retryForever("redis "+redisAddr, func(int) error {
		c := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       intFromEnv("REDIS_DB", 0),
			PoolSize: intFromEnv("REDIS_POOL_SIZE", 100),
		})
		if err := c.Ping(bg).Err(); err != nil {
			_ = c.Close()
			return err
		}
		SetRedisClient(c)
		return nil
	})
}

// CacheLifespan is the TTL of read caches (CACHE_LIFESPAN hours, default 24).
func CacheLifespan() time.Duration {
	hours := intFromEnv("CACHE_LIFESPAN", 24)
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}
