package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"
)

const (
	presenceRedisPattern       = "PRESENCE_%s"
	serverPresenceRedisPattern = "SERVER_PRESENCE_%s"
)

// RedisPresenceCache 集群模式下的共享在线状态缓存。
// 单机模式不用 redis，hub 只走本地 registry。
type RedisPresenceCache struct {
	client *redis.Client
}

// NewRedisPresenceCache NewRedisPresenceCache
func NewRedisPresenceCache(client *redis.Client) *RedisPresenceCache {
	return &RedisPresenceCache{client: client}
}

// SetPresence SetPresence
func (c *RedisPresenceCache) SetPresence(rec *PresenceRecord) error {
	data, _ := json.Marshal(rec)
	pkey := fmt.Sprintf(presenceRedisPattern, rec.UserID)
	if err := c.client.Set(pkey, data, time.Hour*24).Err(); err != nil {
		return err
	}
	skey := fmt.Sprintf(serverPresenceRedisPattern, rec.ServerID)
	c.client.HSet(skey, pkey, time.Now().Unix())
	return nil
}

// GetPresence GetPresence
func (c *RedisPresenceCache) GetPresence(userID string) (*PresenceRecord, error) {
	pkey := fmt.Sprintf(presenceRedisPattern, userID)
	str, err := c.client.Get(pkey).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := &PresenceRecord{}
	if err := json.Unmarshal([]byte(str), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DelPresence DelPresence
func (c *RedisPresenceCache) DelPresence(userID string) error {
	return c.client.Del(fmt.Sprintf(presenceRedisPattern, userID)).Err()
}

// DelServer 节点下线时清掉本节点落的所有状态
func (c *RedisPresenceCache) DelServer(serverID string) error {
	skey := fmt.Sprintf(serverPresenceRedisPattern, serverID)
	keys, err := c.client.HKeys(skey).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		c.client.Del(keys...)
	}
	return c.client.Del(skey).Err()
}

// InitRedis return a redis instance
func InitRedis(ip string, port int, pass string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", ip, port),
		Password: pass,
		DB:       db,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, err
	}
	return client, nil
}
