package hub

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vacualtd/vacua-chat/config"
	"github.com/vacualtd/vacua-chat/database"
	"github.com/vacualtd/vacua-chat/storage"
	"github.com/vacualtd/vacua-chat/wire"
)

const historyLimit = 50

type addPeer struct {
	peer *ClientPeer
	done chan struct{}
}

type delPeer struct {
	peer *ClientPeer
	done chan struct{}
}

// Hub 是服务中心，编排所有引擎组件：连接注册表、在线状态、
// 输入状态、限流、鉴权、消息管道与房间广播
type Hub struct {
	upgrader *websocket.Upgrader
	config   *config.Config

	registry   *ConnectionRegistry
	presence   *PresenceTracker
	typing     *TypingCoordinator
	limiter    *RateLimiter
	authorizer *RoomAuthorizer
	resolver   *PrivateRoomResolver
	receipts   *ReadReceiptAggregator
	pipeline   *MessagePipeline

	rooms    database.RoomStore
	messages database.MessageStore

	roomMu     sync.Mutex
	roomActors map[string]*Room

	register   chan *addPeer
	unregister chan *delPeer
	quit       chan struct{}
}

// NewHub 创建一个 Hub 对象，并初始化。
// cache/uploader/thumbnailer/journal 可为 nil。
func NewHub(cfg *config.Config, rooms database.RoomStore, messages database.MessageStore,
	cache database.PresenceCache, uploader storage.Uploader, thumbnailer storage.Thumbnailer,
	journal DeliveryJournal) (*Hub, error) {
	var upgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.Server.Origin == "*" {
				return true
			}
			rOrigin := r.Header.Get("Origin")
			if strings.Contains(cfg.Server.Origin, rOrigin) {
				return true
			}
			log.Println("refuse", rOrigin)
			return false
		},
	}

	hub := &Hub{
		upgrader:   upgrader,
		config:     cfg,
		registry:   NewConnectionRegistry(),
		rooms:      rooms,
		messages:   messages,
		roomActors: make(map[string]*Room),
		register:   make(chan *addPeer, 1),
		unregister: make(chan *delPeer, 1),
		quit:       make(chan struct{}),
	}

	hub.limiter = NewRateLimiter(cfg.Limits.EventCapacity, cfg.Limits.EventRate,
		cfg.Limits.MessageCapacity, cfg.Limits.MessageRate)
	hub.authorizer = NewRoomAuthorizer(rooms)
	hub.resolver = NewPrivateRoomResolver(rooms)
	hub.receipts = NewReadReceiptAggregator(messages)
	hub.typing = NewTypingCoordinator(cfg.Typing.TTL, hub.broadcastTyping)
	hub.presence = NewPresenceTracker(hub.registry, cache, cfg.Server.ID,
		cfg.Presence.IdleAfter, cfg.Presence.SweepInterval, hub.broadcastPresence)
	hub.pipeline = NewMessagePipeline(hub.limiter, hub.authorizer, rooms, messages,
		hub, uploader, thumbnailer, journal)

	go httplisten(hub, &cfg.Server)

	return hub, nil
}

// Run start all handlers
func (h *Hub) Run() {
	go h.peerHandler()

	<-h.quit
}

func (h *Hub) peerHandler() {
	log.Println("start peerHandler")
	for {
		select {
		case p := <-h.register:
			conn := p.peer.conn
			n := h.registry.Register(conn)
			if n == 1 {
				h.presence.UserOnline(conn.UserID)
			}
			log.Printf("client %v connected, user %v devices %v", conn.ID, conn.UserID, n)
			if p.done != nil {
				p.done <- struct{}{}
			}
		case p := <-h.unregister:
			h.cleanPeer(p.peer)
			if p.done != nil {
				p.done <- struct{}{}
			}
		case <-h.quit:
			return
		}
	}
}

// cleanPeer 连接断开后的全部清理：注册表、房间、输入状态、限流桶
func (h *Hub) cleanPeer(peer *ClientPeer) {
	conn := peer.conn
	userID, remaining := h.registry.Unregister(conn.ID)
	if userID == "" {
		return
	}
	for _, roomID := range peer.joinedRooms() {
		h.leaveRoomActor(peer, roomID)
	}
	h.limiter.Release(conn.ID)
	if remaining == 0 {
		h.presence.UserOffline(userID)
		h.typing.PurgeUser(userID)
	}
	log.Printf("client %v disconnected, user %v devices %v", conn.ID, userID, remaining)
}

// RoomFor 房间的广播 actor，没人加入过返回 nil
func (h *Hub) RoomFor(roomID string) *Room {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()
	return h.roomActors[roomID]
}

func (h *Hub) roomActor(roomID string) *Room {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()
	room, has := h.roomActors[roomID]
	if !has {
		room = NewRoom(roomID)
		h.roomActors[roomID] = room
	}
	return room
}

// removeRoomIfEmpty 房间没有连接后回收 actor
func (h *Hub) removeRoomIfEmpty(roomID string) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()
	room, has := h.roomActors[roomID]
	if has && room.Empty() {
		delete(h.roomActors, roomID)
		room.Exit()
		h.receipts.PurgeRoom(roomID)
	}
}

func (h *Hub) broadcastTyping(roomID string, users []string, exceptConn string) {
	room := h.RoomFor(roomID)
	if room == nil {
		return
	}
	room.Broadcast(wire.MakeMessage(&wire.TypingStatus{
		RoomID: roomID,
		Users:  users,
	}), exceptConn, nil)
}

func (h *Hub) broadcastPresence(update *wire.PresenceUpdate) {
	message := wire.MakeMessage(update)
	if h.config.Presence.Broadcast == config.BroadcastRooms {
		// 只发给与该用户同房间的连接
		h.roomMu.Lock()
		actors := make([]*Room, 0, len(h.roomActors))
		for _, room := range h.roomActors {
			actors = append(actors, room)
		}
		h.roomMu.Unlock()
		for _, room := range actors {
			for _, member := range room.OnlineMembers() {
				if member == update.UserID {
					room.Broadcast(message, "", nil)
					break
				}
			}
		}
		return
	}
	h.registry.Broadcast(func(conn *Connection) {
		conn.Peer.PushMessage(message, nil)
	})
}

// handleMessage 事件分发入口。除 ack 计数外，任何入站事件都
// 更新活跃时间并消耗事件令牌。
func (h *Hub) handleMessage(peer *ClientPeer, message *wire.Message) error {
	conn := peer.conn
	seq := message.Header.Seq

	h.registry.Touch(conn.ID)
	h.presence.Activity(conn.UserID)

	if !h.limiter.ConsumeEvent(conn.ID) {
		peer.PushMessage(wire.MakeAckMessage(seq, wire.NewError(wire.CodeRateLimited, "Rate limit exceeded")), nil)
		return nil
	}

	switch body := message.Body.(type) {
	case *wire.JoinRoom:
		h.handleJoinRoom(peer, seq, body)
	case *wire.LeaveRoom:
		h.handleLeaveRoom(peer, seq, body)
	case *wire.SendMessage:
		h.replyAck(peer, seq, body.ClientID)(h.pipeline.Send(conn, body))
	case *wire.EditMessage:
		h.replyAck(peer, seq, "")(h.pipeline.Edit(conn, body))
	case *wire.DeleteMessage:
		h.replyAck(peer, seq, "")(h.pipeline.Delete(conn, body))
	case *wire.Typing:
		h.handleTyping(peer, seq, body)
	case *wire.MarkRead:
		h.handleMarkRead(peer, seq, body)
	case *wire.InitPrivateChat:
		h.handlePrivateChat(peer, seq, body.RecipientID, "")
	case *wire.CreatePrivateChat:
		h.handlePrivateChat(peer, seq, body.RecipientID, body.InitialMessage)
	case *wire.SetPresence:
		h.presence.SetStatus(conn.UserID, body.Status)
	default:
		peer.PushMessage(wire.MakeAckMessage(seq, wire.NewError(wire.CodeInvalidEvent, "unhandled event "+message.Header.Event)), nil)
	}
	return nil
}

// replyAck 统一的应答收尾：成功回 ack，失败回携带错误码的失败 ack
func (h *Hub) replyAck(peer *ClientPeer, seq uint32, clientID string) func(*wire.Ack, error) {
	return func(ack *wire.Ack, err error) {
		if err != nil {
			peer.PushMessage(wire.MakeAckMessage(seq, AsAck(err, clientID)), nil)
			return
		}
		peer.PushMessage(wire.MakeAckMessage(seq, ack), nil)
	}
}

func (h *Hub) pushError(peer *ClientPeer, seq uint32, err error) {
	peer.PushMessage(wire.MakeAckMessage(seq, AsWireError(err)), nil)
}

// handleJoinRoom 加入房间广播。入场方收到带历史消息的 room-update，
// 其它连接收到不带历史的成员变化
func (h *Hub) handleJoinRoom(peer *ClientPeer, seq uint32, req *wire.JoinRoom) {
	conn := peer.conn
	if err := h.authorizer.Authorize(req.RoomID, conn.UserID); err != nil {
		h.pushError(peer, seq, err)
		return
	}

	room := h.roomActor(req.RoomID)
	room.Join(conn)
	peer.markJoined(req.RoomID)
	online := room.OnlineMembers()

	recent := h.recentHistory(req.RoomID)
	peer.PushMessage(wire.MakeAckMessage(seq, &wire.RoomUpdate{
		RoomID:        req.RoomID,
		Type:          "user-joined",
		UserID:        conn.UserID,
		OnlineMembers: online,
		Recent:        recent,
	}), nil)

	room.Broadcast(wire.MakeMessage(&wire.RoomUpdate{
		RoomID:        req.RoomID,
		Type:          "user-joined",
		UserID:        conn.UserID,
		OnlineMembers: online,
	}), conn.ID, nil)
}

func (h *Hub) handleLeaveRoom(peer *ClientPeer, seq uint32, req *wire.LeaveRoom) {
	if req.RoomID == "" {
		h.pushError(peer, seq, ErrRoomRequired)
		return
	}
	if !peer.hasJoined(req.RoomID) {
		peer.PushMessage(wire.MakeAckMessage(seq, &wire.Ack{Success: true}), nil)
		return
	}
	h.leaveRoomActor(peer, req.RoomID)
	peer.PushMessage(wire.MakeAckMessage(seq, &wire.Ack{Success: true}), nil)
}

func (h *Hub) leaveRoomActor(peer *ClientPeer, roomID string) {
	room := h.RoomFor(roomID)
	if room == nil {
		return
	}
	conn := peer.conn
	room.Leave(conn)
	peer.markLeft(roomID)
	room.Broadcast(wire.MakeMessage(&wire.RoomUpdate{
		RoomID:        roomID,
		Type:          "user-left",
		UserID:        conn.UserID,
		OnlineMembers: room.OnlineMembers(),
	}), conn.ID, nil)
	h.removeRoomIfEmpty(roomID)
}

func (h *Hub) handleTyping(peer *ClientPeer, seq uint32, req *wire.Typing) {
	if err := h.authorizer.Authorize(req.RoomID, peer.conn.UserID); err != nil {
		h.pushError(peer, seq, err)
		return
	}
	h.typing.SetTypingFrom(req.RoomID, peer.conn.UserID, req.IsTyping, peer.conn.ID)
}

func (h *Hub) handleMarkRead(peer *ClientPeer, seq uint32, req *wire.MarkRead) {
	conn := peer.conn
	if err := h.authorizer.Authorize(req.RoomID, conn.UserID); err != nil {
		h.pushError(peer, seq, err)
		return
	}
	event, err := h.receipts.MarkRead(req.RoomID, conn.UserID, req.MessageIDs)
	if err != nil {
		h.pushError(peer, seq, sendFailed(err))
		return
	}
	peer.PushMessage(wire.MakeAckMessage(seq, &wire.Ack{Success: true}), nil)
	if event == nil {
		return
	}
	if room := h.RoomFor(req.RoomID); room != nil {
		room.Broadcast(wire.MakeMessage(event), conn.ID, nil)
	}
}

// handlePrivateChat 找到或创建两人私聊。发起方收到 private-chat-created，
// 新建时对方的所有在线连接收到 private-chat-received
func (h *Hub) handlePrivateChat(peer *ClientPeer, seq uint32, recipientID, initialMessage string) {
	conn := peer.conn
	if recipientID == "" || recipientID == conn.UserID {
		h.pushError(peer, seq, ErrAccessDenied)
		return
	}

	room, created, err := h.resolver.GetOrCreate(conn.UserID, recipientID)
	if err != nil {
		h.pushError(peer, seq, sendFailed(err))
		return
	}
	info, err := h.resolver.RoomInfo(room)
	if err != nil {
		h.pushError(peer, seq, sendFailed(err))
		return
	}

	var initial *wire.MessageInfo
	if initialMessage != "" {
		// 首条消息走完整管道，房间先建好再发
		ack, err := h.pipeline.Send(conn, &wire.SendMessage{
			RoomID:  room.ID,
			Content: initialMessage,
		})
		if err != nil {
			h.pushError(peer, seq, err)
			return
		}
		if saved, err := h.messages.GetMessage(ack.MessageID); err == nil {
			initial = hydrate(saved)
		}
	}

	peer.PushMessage(wire.MakeAckMessage(seq,
		wire.NewPrivateChat(wire.EventPrivateChatCreated, *info, initial)), nil)

	if !created && initial == nil {
		return
	}
	received := wire.MakeMessage(wire.NewPrivateChat(wire.EventPrivateChatRecv, *info, initial))
	for _, rc := range h.registry.ActiveConnections(recipientID) {
		rc.Peer.PushMessage(received, nil)
	}
}

func (h *Hub) recentHistory(roomID string) []wire.MessageInfo {
	messages, err := h.messages.RecentMessages(roomID, historyLimit)
	if err != nil {
		log.Println(err)
		return nil
	}
	infos := make([]wire.MessageInfo, 0, len(messages))
	for i := range messages {
		infos = append(infos, *hydrate(&messages[i]))
	}
	return infos
}

// Close close hub
func (h *Hub) Close() {
	h.clean()

	close(h.quit)
}

// clean clean hub
func (h *Hub) clean() {
	h.presence.Close()

	h.registry.Broadcast(func(conn *Connection) {
		if peer, ok := conn.Peer.(*ClientPeer); ok {
			peer.Close()
		}
	})

	h.roomMu.Lock()
	for roomID, room := range h.roomActors {
		delete(h.roomActors, roomID)
		room.Exit()
	}
	h.roomMu.Unlock()

	time.Sleep(time.Second)
}
