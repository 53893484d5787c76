package hub

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vacualtd/vacua-chat/config"
	"github.com/vacualtd/vacua-chat/database"
	"github.com/vacualtd/vacua-chat/wire"
)

const testSecret = "test-secret"

type hubFixture struct {
	hub      *Hub
	rooms    *database.MemRoomStore
	messages *database.MemMessageStore
	server   *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	cfg := &config.Config{
		Server: config.ServerConfig{
			ID:     "s1",
			Listen: "127.0.0.1:0",
			Secret: testSecret,
			Origin: "*",
			Mode:   config.ModeSingle,
		},
		Limits: config.LimitsConfig{
			EventCapacity: 100, EventRate: 100,
			MessageCapacity: 50, MessageRate: 50,
		},
		Presence: config.PresenceConfig{
			IdleAfter:     time.Minute,
			SweepInterval: time.Hour,
			Broadcast:     config.BroadcastGlobal,
		},
		Typing: config.TypingConfig{TTL: 200 * time.Millisecond},
		Peer:   config.PeerConfig{},
	}

	rooms := database.NewMemRoomStore()
	messages := database.NewMemMessageStore()
	err := rooms.CreateRoom(&database.Room{
		ID:      "r1",
		Type:    wire.RoomTypeGroup,
		PairKey: "r1",
	}, []*database.RoomMember{
		{RoomID: "r1", UserID: "u1", Role: wire.RoleAdmin},
		{RoomID: "r1", UserID: "u2", Role: wire.RoleMember},
	})
	require.Nil(t, err)

	hub, err := NewHub(cfg, rooms, messages, nil, nil, nil, nil)
	require.Nil(t, err)
	go hub.Run()

	server := httptest.NewServer(hub.handler())
	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})
	return &hubFixture{hub: hub, rooms: rooms, messages: messages, server: server}
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn

	mu    sync.Mutex
	inbox []*wire.Message
	seq   uint32
}

func (f *hubFixture) dial(t *testing.T, userID string) *testClient {
	nonce := fmt.Sprintf("%d", time.Now().UnixNano())
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") +
		"/chat?uid=" + userID + "&name=" + userID + "&nonce=" + nonce +
		"&digest=" + digestOf(testSecret, userID+nonce)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.Nil(t, err)

	client := &testClient{t: t, conn: conn}
	go client.readLoop()
	t.Cleanup(func() { conn.Close() })
	return client
}

func digestOf(secret, text string) string {
	h := md5.New()
	io.WriteString(h, text)
	io.WriteString(h, secret)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *testClient) readLoop() {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := wire.Decode(payload)
		if err != nil {
			continue
		}
		c.mu.Lock()
		c.inbox = append(c.inbox, msg)
		c.mu.Unlock()
	}
}

func (c *testClient) send(body wire.Payload) uint32 {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()
	msg := wire.MakeMessage(body)
	msg.Header.Seq = seq
	payload, err := wire.Encode(msg)
	require.Nil(c.t, err)
	require.Nil(c.t, c.conn.WriteMessage(websocket.TextMessage, payload))
	return seq
}

// waitFor 等待并取走首条匹配的消息
func (c *testClient) waitFor(match func(*wire.Message) bool) *wire.Message {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for i, msg := range c.inbox {
			if match(msg) {
				c.inbox = append(c.inbox[:i], c.inbox[i+1:]...)
				c.mu.Unlock()
				return msg
			}
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	c.t.Fatalf("timed out waiting for message")
	return nil
}

func (c *testClient) waitEvent(event string) *wire.Message {
	return c.waitFor(func(msg *wire.Message) bool { return msg.Header.Event == event })
}

func (c *testClient) waitAck(seq uint32) *wire.Message {
	return c.waitFor(func(msg *wire.Message) bool { return msg.Header.AckSeq == seq })
}

// countEvent 当前收件箱里某事件的数量
func (c *testClient) countEvent(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, msg := range c.inbox {
		if msg.Header.Event == event {
			n++
		}
	}
	return n
}

func (c *testClient) join(roomID string) *wire.RoomUpdate {
	seq := c.send(&wire.JoinRoom{RoomID: roomID})
	msg := c.waitAck(seq)
	update, ok := msg.Body.(*wire.RoomUpdate)
	require.True(c.t, ok, "expected room-update, got %v", msg.Header.Event)
	return update
}

func TestHub_JoinAndChat(t *testing.T) {
	f := newHubFixture(t)
	alice := f.dial(t, "u1")
	bob := f.dial(t, "u2")

	update := alice.join("r1")
	assert.Equal(t, []string{"u1"}, update.OnlineMembers)

	bob.join("r1")
	joined := alice.waitEvent(wire.EventRoomUpdate)
	body := joined.Body.(*wire.RoomUpdate)
	assert.Equal(t, "u2", body.UserID)
	assert.ElementsMatch(t, []string{"u1", "u2"}, body.OnlineMembers)

	seq := alice.send(&wire.SendMessage{RoomID: "r1", Content: "hello bob", ClientID: "cli-1"})
	ackMsg := alice.waitAck(seq)
	ack := ackMsg.Body.(*wire.Ack)
	assert.True(t, ack.Success)
	assert.NotEmpty(t, ack.MessageID)
	assert.Equal(t, "cli-1", ack.ClientID)

	received := bob.waitEvent(wire.EventNewMessage)
	newMsg := received.Body.(*wire.NewMessage)
	assert.Equal(t, "hello bob", newMsg.Message.Content)
	assert.Equal(t, "u1", newMsg.Message.SenderID)
	assert.Equal(t, "cli-1", newMsg.Message.ClientID)

	room, _ := f.rooms.GetRoom("r1")
	assert.Equal(t, ack.MessageID, room.LastMessageID)
	assert.Equal(t, "hello bob", room.LastMessageText)
}

func TestHub_JoinDenied(t *testing.T) {
	f := newHubFixture(t)
	outsider := f.dial(t, "stranger")

	seq := outsider.send(&wire.JoinRoom{RoomID: "r1"})
	msg := outsider.waitAck(seq)
	errBody, ok := msg.Body.(*wire.Error)
	require.True(t, ok)
	assert.Equal(t, wire.CodeAccessDenied, errBody.Code)
	assert.Equal(t, "Access denied to chat room", errBody.Message)
}

func TestHub_UnknownEventRejected(t *testing.T) {
	f := newHubFixture(t)
	alice := f.dial(t, "u1")

	// 未知事件名的帧不能被静默丢弃，发送方要收到结构化错误
	raw := []byte(`{"event":"raise-hand","seq":9,"data":{}}`)
	require.Nil(t, alice.conn.WriteMessage(websocket.TextMessage, raw))

	msg := alice.waitFor(func(m *wire.Message) bool {
		return m.Header.Event == wire.EventError && m.Header.AckSeq == 9
	})
	errBody := msg.Body.(*wire.Error)
	assert.False(t, errBody.Success)
	assert.Equal(t, wire.CodeInvalidEvent, errBody.Code)
}

func TestHub_SendDeniedNotStored(t *testing.T) {
	f := newHubFixture(t)
	outsider := f.dial(t, "stranger")

	seq := outsider.send(&wire.SendMessage{RoomID: "r1", Content: "sneak"})
	msg := outsider.waitAck(seq)
	ack := msg.Body.(*wire.Ack)
	assert.False(t, ack.Success)
	assert.Equal(t, wire.CodeAccessDenied, ack.Code)

	messages, _ := f.messages.RecentMessages("r1", 100)
	assert.Empty(t, messages)
}

func TestHub_TypingExpiry(t *testing.T) {
	f := newHubFixture(t)
	alice := f.dial(t, "u1")
	bob := f.dial(t, "u2")
	alice.join("r1")
	bob.join("r1")
	alice.waitEvent(wire.EventRoomUpdate)

	alice.send(&wire.Typing{RoomID: "r1", IsTyping: true})
	status := bob.waitEvent(wire.EventTypingStatus).Body.(*wire.TypingStatus)
	assert.Equal(t, []string{"u1"}, status.Users)

	// TTL 过后自动清掉并再次广播
	status = bob.waitEvent(wire.EventTypingStatus).Body.(*wire.TypingStatus)
	assert.Empty(t, status.Users)
}

func TestHub_TypingClearedOnDisconnect(t *testing.T) {
	f := newHubFixture(t)
	alice := f.dial(t, "u1")
	bob := f.dial(t, "u2")
	alice.join("r1")
	bob.join("r1")
	alice.waitEvent(wire.EventRoomUpdate)

	alice.send(&wire.Typing{RoomID: "r1", IsTyping: true})
	status := bob.waitEvent(wire.EventTypingStatus).Body.(*wire.TypingStatus)
	assert.Equal(t, []string{"u1"}, status.Users)

	alice.conn.Close()
	status = bob.waitEvent(wire.EventTypingStatus).Body.(*wire.TypingStatus)
	assert.Empty(t, status.Users)
}

func TestHub_MarkReadIdempotent(t *testing.T) {
	f := newHubFixture(t)
	alice := f.dial(t, "u1")
	bob := f.dial(t, "u2")
	alice.join("r1")
	bob.join("r1")
	alice.waitEvent(wire.EventRoomUpdate)

	seq := alice.send(&wire.SendMessage{RoomID: "r1", Content: "read me"})
	ack := alice.waitAck(seq).Body.(*wire.Ack)
	bob.waitEvent(wire.EventNewMessage)

	bob.send(&wire.MarkRead{RoomID: "r1", MessageIDs: []string{ack.MessageID}})
	read := alice.waitEvent(wire.EventMessagesRead).Body.(*wire.MessagesRead)
	assert.Equal(t, []string{ack.MessageID}, read.MessageIDs)
	assert.Equal(t, "u2", read.UserID)

	// 重复回执不再广播
	bob.send(&wire.MarkRead{RoomID: "r1", MessageIDs: []string{ack.MessageID}})
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, alice.countEvent(wire.EventMessagesRead))
}

func TestHub_PrivateChat(t *testing.T) {
	f := newHubFixture(t)
	alice := f.dial(t, "u1")
	bob := f.dial(t, "u2")

	seq := alice.send(&wire.CreatePrivateChat{RecipientID: "u2", InitialMessage: "hey"})
	created := alice.waitAck(seq)
	assert.Equal(t, wire.EventPrivateChatCreated, created.Header.Event)
	chat := created.Body.(*wire.PrivateChat)
	assert.Equal(t, wire.RoomTypePrivate, chat.Room.Type)
	assert.ElementsMatch(t, []string{"u1", "u2"}, chat.Room.Members)
	require.NotNil(t, chat.InitialMessage)
	assert.Equal(t, "hey", chat.InitialMessage.Content)

	received := bob.waitEvent(wire.EventPrivateChatRecv).Body.(*wire.PrivateChat)
	assert.Equal(t, chat.Room.ID, received.Room.ID)
	require.NotNil(t, received.InitialMessage)
	assert.Equal(t, "hey", received.InitialMessage.Content)

	// 再次发起拿到同一个房间
	seq = alice.send(&wire.InitPrivateChat{RecipientID: "u2"})
	again := alice.waitAck(seq).Body.(*wire.PrivateChat)
	assert.Equal(t, chat.Room.ID, again.Room.ID)
}

func TestHub_PresenceLifecycle(t *testing.T) {
	f := newHubFixture(t)
	bob := f.dial(t, "u2")
	bob.waitFor(func(msg *wire.Message) bool {
		update, ok := msg.Body.(*wire.PresenceUpdate)
		return ok && update.UserID == "u2" && update.Status == StatusOnline
	})

	alice := f.dial(t, "u1")
	update := bob.waitFor(func(msg *wire.Message) bool {
		u, ok := msg.Body.(*wire.PresenceUpdate)
		return ok && u.UserID == "u1"
	}).Body.(*wire.PresenceUpdate)
	assert.Equal(t, StatusOnline, update.Status)

	// 第二台设备上线、下线都不触发状态变化
	alice2 := f.dial(t, "u1")
	alice2.conn.Close()
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, bob.countEvent(wire.EventPresenceUpdate))

	alice.conn.Close()
	update = bob.waitFor(func(msg *wire.Message) bool {
		u, ok := msg.Body.(*wire.PresenceUpdate)
		return ok && u.UserID == "u1"
	}).Body.(*wire.PresenceUpdate)
	assert.Equal(t, StatusOffline, update.Status)
}

func TestHub_HistoryOnJoin(t *testing.T) {
	f := newHubFixture(t)
	for i := 0; i < 3; i++ {
		f.messages.SaveMessage(&database.Message{
			ID:        fmt.Sprintf("m%d", i),
			RoomID:    "r1",
			SenderID:  "u1",
			Content:   fmt.Sprintf("old %d", i),
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		})
	}

	bob := f.dial(t, "u2")
	update := bob.join("r1")
	require.Len(t, update.Recent, 3)
	// 历史按时间正序
	assert.Equal(t, "old 0", update.Recent[0].Content)
	assert.Equal(t, "old 2", update.Recent[2].Content)
}

func TestHub_BadDigestRejected(t *testing.T) {
	f := newHubFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") +
		"/chat?uid=u1&name=u1&nonce=123&digest=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NotNil(t, err)
	if resp != nil {
		assert.Equal(t, 400, resp.StatusCode)
	}
}
