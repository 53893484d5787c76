package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/go-ini/ini"
)

const (
	defaultConfigName  = "conf.ini"
	defaultIDName      = "id.lock"
	defaultJournalName = "message.log"
)

const (
	// ModeSingle 单机启动模式，不依赖 redis
	ModeSingle = "single"
	// ModeCluster 集群模式，在线状态共享到 redis
	ModeCluster = "cluster"
)

// 广播范围
const (
	// BroadcastGlobal 在线状态广播到所有连接
	BroadcastGlobal = "global"
	// BroadcastRooms 只广播给同房间的连接
	BroadcastRooms = "rooms"
)

// ServerConfig ServerConfig
type ServerConfig struct {
	ID      string `description:"server id, generated into data dir on first boot"`
	Listen  string
	Secret  string
	Origin  string
	Mode    string
	DataDir string
}

// DatabaseConfig DatabaseConfig
type DatabaseConfig struct {
	Driver string `description:"mysql or sqlite3, empty runs in-memory"`
	Source string
}

// RedisConfig redis config
type RedisConfig struct {
	IP       string
	Port     int
	Password string
	Db       int
}

// PeerConfig PeerConfig
type PeerConfig struct {
	MaxMessageSize int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

// LimitsConfig 两套独立令牌桶：通用事件桶与更严的消息发送桶
type LimitsConfig struct {
	EventCapacity   float64
	EventRate       float64
	MessageCapacity float64
	MessageRate     float64
}

// PresenceConfig PresenceConfig
type PresenceConfig struct {
	IdleAfter     time.Duration
	SweepInterval time.Duration
	Broadcast     string `description:"global or rooms"`
}

// TypingConfig TypingConfig
type TypingConfig struct {
	TTL time.Duration
}

// StorageConfig StorageConfig
type StorageConfig struct {
	Dir        string
	BaseURL    string
	ThumbWidth int
}

// Config 系统配置信息
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Peer     PeerConfig
	Limits   LimitsConfig
	Presence PresenceConfig
	Typing   TypingConfig
	Storage  StorageConfig

	JournalFile string
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:  "0.0.0.0:8380",
			Origin:  "*",
			Mode:    ModeSingle,
			DataDir: "./data",
		},
		Peer: PeerConfig{
			MaxMessageSize: 64 * 1024,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			PingPeriod:     50 * time.Second,
		},
		Limits: LimitsConfig{
			EventCapacity:   10,
			EventRate:       10,
			MessageCapacity: 20,
			MessageRate:     20,
		},
		Presence: PresenceConfig{
			IdleAfter:     5 * time.Minute,
			SweepInterval: 30 * time.Second,
			Broadcast:     BroadcastGlobal,
		},
		Typing: TypingConfig{
			TTL: 5 * time.Second,
		},
		Storage: StorageConfig{
			Dir:        "./data/files",
			BaseURL:    "http://localhost:8380/files",
			ThumbWidth: 320,
		},
	}
}

// LoadConfig 从 conf.ini 读取配置，缺失的 section 用默认值
func LoadConfig(dir string) (*Config, error) {
	config := defaults()

	cfg, err := ini.Load(filepath.Join(dir, defaultConfigName))
	if err != nil {
		fmt.Printf("Fail to read file: %v", err)
		return nil, err
	}
	if err = cfg.Section("server").MapTo(&config.Server); err != nil {
		return nil, err
	}
	if err = cfg.Section("database").MapTo(&config.Database); err != nil {
		return nil, err
	}
	if err = cfg.Section("redis").MapTo(&config.Redis); err != nil {
		return nil, err
	}
	if err = cfg.Section("peer").MapTo(&config.Peer); err != nil {
		return nil, err
	}
	if err = cfg.Section("limits").MapTo(&config.Limits); err != nil {
		return nil, err
	}
	if err = cfg.Section("presence").MapTo(&config.Presence); err != nil {
		return nil, err
	}
	if err = cfg.Section("typing").MapTo(&config.Typing); err != nil {
		return nil, err
	}
	if err = cfg.Section("storage").MapTo(&config.Storage); err != nil {
		return nil, err
	}

	if _, err := os.Stat(config.Server.DataDir); err != nil {
		if err = os.MkdirAll(config.Server.DataDir, os.ModePerm); err != nil {
			return nil, err
		}
	}
	config.JournalFile = filepath.Join(config.Server.DataDir, defaultJournalName)

	if config.Server.ID == "" {
		config.Server.ID, err = BuildServerID(config.Server.DataDir)
		if err != nil {
			return nil, err
		}
	}
	return config, nil
}

// BuildServerID build a serverID, it stays stable across restarts
func BuildServerID(dataDir string) (string, error) {
	idFile := filepath.Join(dataDir, defaultIDName)
	if _, err := os.Stat(idFile); err != nil {
		sid := fmt.Sprintf("%d", time.Now().Unix())
		ioutil.WriteFile(idFile, []byte(sid), 0644)
	}
	fb, err := ioutil.ReadFile(idFile)
	if err != nil {
		return "", err
	}
	return string(fb), nil
}
