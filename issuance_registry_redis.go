// Issuance registry with Redis database

package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Timeout for registry operations
const REDIS_REGISTRY_TIMEOUT = 5 * time.Second

// Issuance registry config
type RedisIssuanceRegistryConfig struct {
	// Host
	Host string

	// Port
	Port int

	// Password
	Password string

	// True to connect with TLS
	UseTls bool

	// Prefix for the keys
	KeyPrefix string
}

// Creates new instance of RedisIssuanceRegistry
func NewRedisIssuanceRegistry(config RedisIssuanceRegistryConfig) *RedisIssuanceRegistry {
	options := &redis.Options{
		Addr:     config.Host + ":" + fmt.Sprint(config.Port),
		Password: config.Password,
	}

	if config.UseTls {
		options.TLSConfig = &tls.Config{}
	}

	return &RedisIssuanceRegistry{
		config:      config,
		redisClient: redis.NewClient(options),
		now:         time.Now,
	}
}

// Issuance registry
type RedisIssuanceRegistry struct {
	// Configuration
	config RedisIssuanceRegistryConfig

	// Redis client
	redisClient *redis.Client

	// Clock
	now func() time.Time
}

// Gets the key for an user in a channel
func (r *RedisIssuanceRegistry) getKey(channelName string, uid uint32) string {
	return r.config.KeyPrefix + channelName + ":" + fmt.Sprint(uid)
}

// Records the tokens issued to an user for a channel.
// The key expires with the tokens.
func (r *RedisIssuanceRegistry) RecordIssuance(record IssuanceRecord) error {
	ttl := time.Unix(int64(record.ExpireTime), 0).Sub(r.now())

	if ttl <= 0 {
		return nil // Already expired
	}

	value, err := json.Marshal(record)

	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), REDIS_REGISTRY_TIMEOUT)
	defer cancel()

	return r.redisClient.Set(ctx, r.getKey(record.ChannelName, record.Uid), value, ttl).Err()
}

// Closes the connection to the database
func (r *RedisIssuanceRegistry) Close() error {
	return r.redisClient.Close()
}
