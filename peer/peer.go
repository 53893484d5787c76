package peer

import (
	"bytes"
	"log"
	"sync/atomic"
	"time"

	"github.com/vacualtd/vacua-chat/wire"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	defaultPingPeriod = (defaultPongWait * 8) / 10

	// Maximum message size allowed from peer.
	defaultMaxMessageSize = 64 * 1024
)

// MessageListeners 消息监听
type MessageListeners struct {
	// OnMessage is invoked for every decoded frame read from the peer.
	OnMessage func(msg *wire.Message) error

	OnDisconnect func() error
}

// Config 节点配置
type Config struct {

	// Time allowed to write a message to the peer.
	WriteWait time.Duration
	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration
	// Send pings to peer with this period. Must be less than pongWait.
	PingPeriod time.Duration
	// Maximum message size allowed from peer.
	MaxMessageSize int

	// MessageQueueLen message len
	MessageQueueLen int

	Listeners *MessageListeners
}

type outMessage struct {
	message []byte
	done    chan<- struct{}
}

// Peer 节点封装了 websocket 通信底层接口
type Peer struct {
	id     string
	config *Config
	conn   *websocket.Conn
	send   chan outMessage

	timeConnected time.Time

	connected int32
}

// NewPeer 创建一个新的节点
func NewPeer(id string, config *Config) *Peer {
	if config.WriteWait == 0 {
		config.WriteWait = defaultWriteWait
	}
	if config.PongWait == 0 {
		config.PongWait = defaultPongWait
	}
	if config.PingPeriod == 0 {
		config.PingPeriod = defaultPingPeriod
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = defaultMaxMessageSize
	}

	if config.PingPeriod >= config.PongWait {
		config.PingPeriod = (config.PongWait * 9) / 10
	}
	return &Peer{
		id:     id,
		config: config,
		send:   make(chan outMessage, config.MessageQueueLen),
	}
}

// ID peer id
func (p *Peer) ID() string {
	return p.id
}

// TimeConnected 连接建立时间
func (p *Peer) TimeConnected() time.Time {
	return p.timeConnected
}

// IsConnected 连接是否存活
func (p *Peer) IsConnected() bool {
	return atomic.LoadInt32(&p.connected) == 1
}

// SetConnection bind connection , start
func (p *Peer) SetConnection(conn *websocket.Conn) {
	// Already connected?
	if !atomic.CompareAndSwapInt32(&p.connected, 0, 1) {
		return
	}

	p.conn = conn
	p.timeConnected = time.Now()

	p.start()
}

func (p *Peer) start() {
	go p.handleRead()
	go p.handleWrite()
}

func (p *Peer) handleRead() {
	defer func() {
		p.config.Listeners.OnDisconnect()
		p.disconnect()
	}()
	p.conn.SetReadLimit(int64(p.config.MaxMessageSize))
	p.conn.SetReadDeadline(time.Now().Add(p.config.PongWait))
	p.conn.SetPongHandler(func(string) error { p.conn.SetReadDeadline(time.Now().Add(p.config.PongWait)); return nil })
	for {
		messageType, payload, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
		if messageType == websocket.CloseMessage {
			log.Printf("closed: %v", p.id)
			break
		}

		// 每帧一条 json 消息。解不出来的帧回结构化错误，发送方能看到失败
		msg := new(wire.Message)
		if err := msg.Decode(bytes.NewReader(payload)); err != nil {
			log.Printf("error from %v : %v", p.id, err)
			var ackSeq uint32
			if msg.Header != nil {
				ackSeq = msg.Header.Seq
			}
			p.PushWireMessage(wire.MakeAckMessage(ackSeq, wire.NewError(wire.CodeInvalidEvent, err.Error())), nil)
			continue
		}
		if err = p.config.Listeners.OnMessage(msg); err != nil {
			log.Println(err)
		}
	}
}

func (p *Peer) handleWrite() {
	ticker := time.NewTicker(p.config.PingPeriod)
	defer func() {
		ticker.Stop()
		p.disconnect()
	}()
	for {
		select {
		case outMessage, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(p.config.WriteWait))
			if !ok {
				// The hub closed the channel.
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := p.conn.WriteMessage(websocket.TextMessage, outMessage.message)
			if outMessage.done != nil {
				outMessage.done <- struct{}{}
			}
			if err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(p.config.WriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// PushMessage 把消息写到队列中，等待处理
func (p *Peer) PushMessage(message []byte, doneChan chan<- struct{}) {
	if atomic.LoadInt32(&p.connected) == 0 {
		if doneChan != nil {
			go func() {
				doneChan <- struct{}{}
			}()
		}
		return
	}
	p.send <- outMessage{message: message, done: doneChan}
}

// PushWireMessage 编码并写入发送队列
func (p *Peer) PushWireMessage(msg *wire.Message, doneChan chan<- struct{}) error {
	payload, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	p.PushMessage(payload, doneChan)
	return nil
}

// Close close conn
func (p *Peer) Close() {
	if atomic.LoadInt32(&p.connected) == 0 {
		return
	}
	close(p.send)
}

//  断开连接
func (p *Peer) disconnect() {
	if !atomic.CompareAndSwapInt32(&p.connected, 1, 0) {
		return
	}
	p.conn.Close()
}
