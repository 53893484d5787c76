package config

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testIni = `
[server]
Listen = 127.0.0.1:9000
Secret = xxx123
Mode = cluster
DataDir = %s

[redis]
IP = 127.0.0.1
Port = 6379

[limits]
MessageCapacity = 5
MessageRate = 5

[typing]
TTL = 3s
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	data := []byte(fmt.Sprintf(testIni, filepath.Join(dir, "data")))
	err := ioutil.WriteFile(filepath.Join(dir, defaultConfigName), data, 0644)
	assert.Nil(t, err)

	config, err := LoadConfig(dir)
	assert.Nil(t, err)

	assert.Equal(t, "127.0.0.1:9000", config.Server.Listen)
	assert.Equal(t, ModeCluster, config.Server.Mode)
	assert.Equal(t, 6379, config.Redis.Port)

	// 未覆盖的 section 走默认值
	assert.Equal(t, float64(10), config.Limits.EventCapacity)
	assert.Equal(t, float64(5), config.Limits.MessageCapacity)
	assert.Equal(t, 5*time.Minute, config.Presence.IdleAfter)
	assert.Equal(t, 3*time.Second, config.Typing.TTL)
	assert.Equal(t, BroadcastGlobal, config.Presence.Broadcast)

	// server id 写入 data dir，重启后保持不变
	assert.NotEmpty(t, config.Server.ID)
	again, err := LoadConfig(dir)
	assert.Nil(t, err)
	assert.Equal(t, config.Server.ID, again.Server.ID)
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.NotNil(t, err)
}
