package main

import (
	"bytes"
	"encoding/json"
	"log"
	"math"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/vacualtd/vacua-chat/config"
	"github.com/vacualtd/vacua-chat/database"
	"github.com/vacualtd/vacua-chat/hub"
	"github.com/vacualtd/vacua-chat/journal"
	"github.com/vacualtd/vacua-chat/storage"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

func handleInterrupt(hub *hub.Hub, sc chan os.Signal) {
	select {
	case <-sc:
		hub.Close()
	}
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	// read config
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Panicln(err)
	}

	var roomStore database.RoomStore
	var messageStore database.MessageStore
	if cfg.Database.Driver == "" {
		// 无数据库配置时全部放内存，重启即清空
		roomStore = database.NewMemRoomStore()
		messageStore = database.NewMemMessageStore()
	} else {
		engine, err := database.InitDb(cfg.Database.Driver, cfg.Database.Source)
		if err != nil {
			log.Panicln(err)
		}
		roomStore = database.NewDbRoomStore(engine)
		messageStore = database.NewDbMessageStore(engine)
	}

	var presenceCache database.PresenceCache
	if cfg.Server.Mode == config.ModeCluster {
		redis, err := database.InitRedis(cfg.Redis.IP, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.Db)
		if err != nil {
			log.Panicln(err)
		}

		t1 := time.Now()
		serverTime, err := redis.Time().Result()
		t2 := time.Now()
		if err != nil {
			log.Panicln(err)
		}
		serverTime = serverTime.Add(t2.Sub(t1))

		if math.Abs(float64(serverTime.Sub(time.Now())/time.Millisecond)) > 500 {
			log.Panicln("system time is incorrect")
		}
		presenceCache = database.NewRedisPresenceCache(redis)
	}

	diskStore, err := storage.NewDiskStore(cfg.Storage.Dir, cfg.Storage.BaseURL)
	if err != nil {
		log.Panicln(err)
	}
	thumbnailer := storage.NewResizeThumbnailer(diskStore, uint(cfg.Storage.ThumbWidth))

	deliveryLog, err := journal.NewJournal(&journal.Config{
		File: cfg.JournalFile,
		SubFunc: func(records []*bytes.Buffer) error {
			return saveDeliveries(messageStore, records)
		},
	})
	if err != nil {
		log.Panicln(err)
	}
	defer deliveryLog.Close()

	// new server
	hub, err := hub.NewHub(cfg, roomStore, messageStore, presenceCache, diskStore, thumbnailer, deliveryLog)
	if err != nil {
		log.Panicln(err)
	}
	// listen sys.exit
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, os.Interrupt)

	go handleInterrupt(hub, sc)

	hub.Run()
}

func saveDeliveries(messageStore database.MessageStore, records []*bytes.Buffer) error {
	deliveries := make([]*database.Delivery, 0, len(records))
	for _, record := range records {
		delivery := &database.Delivery{}
		if err := json.Unmarshal(record.Bytes(), delivery); err != nil {
			log.Println(err)
			continue
		}
		deliveries = append(deliveries, delivery)
	}
	if len(deliveries) == 0 {
		return nil
	}
	return messageStore.SaveDeliveries(deliveries)
}
