package hub

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vacualtd/vacua-chat/peer"
	"github.com/vacualtd/vacua-chat/wire"
)

// ClientPeer 代表一个客户端连接，消息收发的处理逻辑
type ClientPeer struct {
	*peer.Peer
	hub  *Hub
	conn *Connection

	mu     sync.Mutex
	joined map[string]struct{}
}

// OnMessage 接收消息。peer 读循环串行调用，
// 同一连接的事件按到达顺序处理。
func (p *ClientPeer) OnMessage(message *wire.Message) error {
	return p.hub.handleMessage(p, message)
}

// OnDisconnect 接连断开
func (p *ClientPeer) OnDisconnect() error {
	p.hub.unregister <- &delPeer{peer: p, done: nil}
	return nil
}

// PushMessage 编码后写入发送队列
func (p *ClientPeer) PushMessage(message *wire.Message, done chan<- struct{}) {
	if err := p.PushWireMessage(message, done); err != nil {
		log.Println(err)
	}
}

func (p *ClientPeer) markJoined(roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joined[roomID] = struct{}{}
}

func (p *ClientPeer) markLeft(roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.joined, roomID)
}

func (p *ClientPeer) hasJoined(roomID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, has := p.joined[roomID]
	return has
}

func (p *ClientPeer) joinedRooms() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rooms := make([]string, 0, len(p.joined))
	for roomID := range p.joined {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func newClientPeer(h *Hub, conn *websocket.Conn, connectionID, userID, userName string) (*ClientPeer, error) {
	clientPeer := &ClientPeer{
		hub:    h,
		joined: make(map[string]struct{}),
	}
	clientPeer.conn = &Connection{
		ID:       connectionID,
		UserID:   userID,
		UserName: userName,
		Peer:     clientPeer,
	}

	peer := peer.NewPeer(connectionID, &peer.Config{
		Listeners: &peer.MessageListeners{
			OnMessage:    clientPeer.OnMessage,
			OnDisconnect: clientPeer.OnDisconnect,
		},
		MaxMessageSize:  h.config.Peer.MaxMessageSize,
		WriteWait:       h.config.Peer.WriteWait,
		PongWait:        h.config.Peer.PongWait,
		PingPeriod:      h.config.Peer.PingPeriod,
		MessageQueueLen: 50,
	})

	clientPeer.Peer = peer
	clientPeer.SetConnection(conn)

	return clientPeer, nil
}
