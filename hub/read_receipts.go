package hub

import (
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/vacualtd/vacua-chat/database"
	"github.com/vacualtd/vacua-chat/wire"
)

// ReadReceiptAggregator 处理已读回执。重复 mark-read 幂等：
// 已经读过的消息不落库也不再广播。
type ReadReceiptAggregator struct {
	messages database.MessageStore

	// seen 进程内已处理 (user, message) 缓存，按房间分桶，
	// 房间 actor 回收时随 PurgeRoom 一起释放。幂等性不依赖它，
	// 存储层的集合并集才是判重的依据。
	mu   sync.Mutex
	seen map[string]mapset.Set
}

// NewReadReceiptAggregator NewReadReceiptAggregator
func NewReadReceiptAggregator(messages database.MessageStore) *ReadReceiptAggregator {
	return &ReadReceiptAggregator{
		messages: messages,
		seen:     make(map[string]mapset.Set),
	}
}

// MarkRead 把消息并入用户已读集合，返回房间广播事件。
// 没有新增已读时返回 nil，调用方不广播。
func (a *ReadReceiptAggregator) MarkRead(roomID, userID string, messageIDs []string) (*wire.MessagesRead, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	a.mu.Lock()
	room, has := a.seen[roomID]
	if !has {
		room = mapset.NewSet()
		a.seen[roomID] = room
	}
	a.mu.Unlock()

	pending := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if room.Contains(seenKey(userID, id)) {
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	added, err := a.messages.MarkRead(roomID, userID, pending)
	if err != nil {
		return nil, err
	}
	for _, id := range pending {
		room.Add(seenKey(userID, id))
	}
	if len(added) == 0 {
		return nil, nil
	}
	return &wire.MessagesRead{
		RoomID:     roomID,
		MessageIDs: added,
		UserID:     userID,
	}, nil
}

// PurgeRoom 房间没有连接后释放它的缓存桶
func (a *ReadReceiptAggregator) PurgeRoom(roomID string) {
	a.mu.Lock()
	delete(a.seen, roomID)
	a.mu.Unlock()
}

func seenKey(userID, messageID string) string {
	return userID + "|" + messageID
}
