package hub

import (
	"sort"
	"sync"

	"github.com/vacualtd/vacua-chat/wire"
)

type roomMessage struct {
	message *wire.Message
	// exceptConn 不推给该连接（通常是触发方，它单独收 ack）
	exceptConn string
	done       chan<- struct{}
}

// Room 房间广播 actor。包内单 goroutine 消费 packet 队列，
// 同一房间的消息按入队顺序推给所有已加入连接。
// Join/Leave 同步改成员表，紧随其后的 OnlineMembers 结果确定。
type Room struct {
	ID string

	mu      sync.RWMutex
	members map[string]*Connection // key: connectionID

	packet chan *roomMessage
	exit   chan struct{}
}

// NewRoom NewRoom
func NewRoom(id string) *Room {
	room := &Room{
		ID:      id,
		members: make(map[string]*Connection),
		packet:  make(chan *roomMessage, 50),
		exit:    make(chan struct{}, 1),
	}
	go room.loop()

	return room
}

func (r *Room) loop() {
	for {
		select {
		case rm := <-r.packet:
			r.mu.RLock()
			for _, conn := range r.members {
				if conn.ID == rm.exceptConn {
					continue
				}
				conn.Peer.PushMessage(rm.message, nil)
			}
			r.mu.RUnlock()
			if rm.done != nil {
				rm.done <- struct{}{}
			}
		case <-r.exit:
			return
		}
	}
}

// Join 连接加入房间广播
func (r *Room) Join(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[conn.ID] = conn
}

// Leave 连接退出房间广播
func (r *Room) Leave(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, conn.ID)
}

// Broadcast 推给房间内所有连接，exceptConn 除外
func (r *Room) Broadcast(message *wire.Message, exceptConn string, done chan<- struct{}) {
	r.packet <- &roomMessage{
		message:    message,
		exceptConn: exceptConn,
		done:       done,
	}
}

// OnlineMembers 房间内已加入连接对应的在线用户（去重排序）
func (r *Room) OnlineMembers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.members))
	for _, conn := range r.members {
		seen[conn.UserID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// HasConnection HasConnection
func (r *Room) HasConnection(connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, has := r.members[connectionID]
	return has
}

// Empty 房间里没有任何连接
func (r *Room) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members) == 0
}

// Exit stop room loop
func (r *Room) Exit() {
	r.exit <- struct{}{}
}
