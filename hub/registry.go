package hub

import (
	"sync"
	"time"

	"github.com/vacualtd/vacua-chat/wire"
)

// Pusher 可接收下行消息的连接端点
type Pusher interface {
	PushMessage(msg *wire.Message, done chan<- struct{})
}

// Connection 注册表登记的一条活跃连接。同一用户允许多条连接并存。
type Connection struct {
	ID       string
	UserID   string
	UserName string
	Peer     Pusher

	ConnectedAt  time.Time
	LastActivity time.Time
}

// ConnectionRegistry 连接注册表，connectionID 与用户互查
type ConnectionRegistry struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	byUser map[string]map[string]*Connection
}

// NewConnectionRegistry NewConnectionRegistry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byID:   make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Register 登记连接，返回该用户当前的连接数
func (r *ConnectionRegistry) Register(conn *Connection) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = now
	}
	conn.LastActivity = now
	r.byID[conn.ID] = conn
	conns, has := r.byUser[conn.UserID]
	if !has {
		conns = make(map[string]*Connection)
		r.byUser[conn.UserID] = conns
	}
	conns[conn.ID] = conn
	return len(conns)
}

// Unregister 注销连接，返回该用户剩余连接数；重复注销不报错
func (r *ConnectionRegistry) Unregister(connectionID string) (userID string, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, has := r.byID[connectionID]
	if !has {
		return "", 0
	}
	delete(r.byID, connectionID)
	conns := r.byUser[conn.UserID]
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(r.byUser, conn.UserID)
	}
	return conn.UserID, len(conns)
}

// Get Get
func (r *ConnectionRegistry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, has := r.byID[connectionID]
	return conn, has
}

// ActiveConnections 用户的所有活跃连接
func (r *ConnectionRegistry) ActiveConnections(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn)
	}
	return out
}

// IsOnline 用户是否至少有一条活跃连接
func (r *ConnectionRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Touch 记录连接活跃时间
func (r *ConnectionRegistry) Touch(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, has := r.byID[connectionID]; has {
		conn.LastActivity = time.Now()
	}
}

// OnlineUsers 当前在线用户列表
func (r *ConnectionRegistry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	return users
}

// Count 活跃连接总数
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Broadcast 把消息推给所有连接
func (r *ConnectionRegistry) Broadcast(push func(conn *Connection)) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byID))
	for _, conn := range r.byID {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()
	for _, conn := range conns {
		push(conn)
	}
}
