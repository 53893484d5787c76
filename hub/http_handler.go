package hub

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/vacualtd/vacua-chat/config"
)

// start http server ,this function must be in a routine
func httplisten(hub *Hub, conf *config.ServerConfig) {

	log.Println("listen on ", conf.Listen)
	err := http.ListenAndServe(conf.Listen, hub.handler())

	if err != nil {
		log.Println("ListenAndServe: ", err)
		return
	}
}

func (h *Hub) handler() http.Handler {
	mux := http.NewServeMux()

	// regist a service for client
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		handleClientWebSocket(h, w, r)
	})

	mux.HandleFunc("/q/online", func(w http.ResponseWriter, r *http.Request) {
		httpQueryOnlineHandler(h, w, r)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})

	return mux
}

// 处理来自客户端的连接
func handleClientWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uid := q.Get("uid")
	name := q.Get("name")
	nonce := q.Get("nonce")
	digest := q.Get("digest")

	if uid == "" || nonce == "" || digest == "" {
		// 错误处理，断开
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	// 校验digest及数据完整性
	if !checkDigest(hub.config.Server.Secret, fmt.Sprintf("%v%v", uid, nonce), digest) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	// upgrade
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handleHTTPErr(w, err)
		return
	}

	connectionID := uuid.New().String()

	log.Printf("client %v connecting, user %v", connectionID, uid)
	clientPeer, err := newClientPeer(hub, conn, connectionID, uid, name)
	if err != nil {
		handleHTTPErr(w, err)
		return
	}

	done := make(chan struct{}, 1)
	// 注册连接到服务器
	hub.register <- &addPeer{peer: clientPeer, done: done}
	<-done
}

type onlineEntry struct {
	UserID     string `json:"userId"`
	Status     string `json:"status"`
	LastActive string `json:"lastActive"`
}

// 在线用户查询
func httpQueryOnlineHandler(hub *Hub, w http.ResponseWriter, r *http.Request) {
	if userID := r.URL.Query().Get("uid"); userID != "" {
		status, lastActive := hub.presence.GetPresence(userID)
		entry := onlineEntry{UserID: userID, Status: status}
		if !lastActive.IsZero() {
			entry.LastActive = lastActive.Format("2006-01-02 15:04:05")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entry)
		return
	}

	entries := make([]onlineEntry, 0)
	for _, update := range hub.presence.Snapshot() {
		entries = append(entries, onlineEntry{
			UserID:     update.UserID,
			Status:     update.Status,
			LastActive: update.LastActive.Format("2006-01-02 15:04:05"),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func checkDigest(secret, text, digest string) bool {
	h := md5.New()
	io.WriteString(h, text)
	io.WriteString(h, secret)
	return digest == hex.EncodeToString(h.Sum(nil))
}

func handleHTTPErr(w http.ResponseWriter, err error) {
	fmt.Fprint(w, err.Error())
	w.WriteHeader(http.StatusBadRequest)
}
