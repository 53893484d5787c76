package database

import (
	"sync"

	mapset "github.com/deckarep/golang-set"
)

// MemRoomStore 内存房间存储，单机模式与测试用
type MemRoomStore struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	byPair  map[string]string
	members map[string][]RoomMember
}

// NewMemRoomStore NewMemRoomStore
func NewMemRoomStore() *MemRoomStore {
	return &MemRoomStore{
		rooms:   make(map[string]*Room),
		byPair:  make(map[string]string),
		members: make(map[string][]RoomMember),
	}
}

// GetRoom GetRoom
func (s *MemRoomStore) GetRoom(id string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *room
	return &clone, nil
}

// GetMember GetMember
func (s *MemRoomStore) GetMember(roomID, userID string) (*RoomMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members[roomID] {
		if m.UserID == userID {
			clone := m
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

// GetMembers GetMembers
func (s *MemRoomStore) GetMembers(roomID string) ([]RoomMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]RoomMember, len(s.members[roomID]))
	copy(members, s.members[roomID])
	return members, nil
}

// FindPrivateRoom FindPrivateRoom
func (s *MemRoomStore) FindPrivateRoom(pairKey string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.rooms[id]
	return &clone, nil
}

// CreateRoom 建房间并写成员。pair_key 已存在时返回 ErrDuplicateRoom，
// 模拟数据库唯一索引，保证并发 getOrCreate 只会落成一个房间。
func (s *MemRoomStore) CreateRoom(room *Room, members []*RoomMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPair[room.PairKey]; ok {
		return ErrDuplicateRoom
	}
	if _, ok := s.rooms[room.ID]; ok {
		return ErrDuplicateRoom
	}
	clone := *room
	s.rooms[room.ID] = &clone
	s.byPair[room.PairKey] = room.ID
	list := make([]RoomMember, 0, len(members))
	for _, m := range members {
		list = append(list, *m)
	}
	s.members[room.ID] = list
	return nil
}

// UpdateLastMessage 按时间戳 last-write-wins
func (s *MemRoomStore) UpdateLastMessage(roomID string, last *LastMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if last.CreatedAt.Before(room.LastMessageAt) {
		// 并发发送下更晚的摘要已经写入，这次忽略
		room.MessageCount++
		return nil
	}
	room.LastMessageID = last.MessageID
	room.LastMessageText = last.Text
	room.LastMessageSender = last.SenderID
	room.LastMessageAt = last.CreatedAt
	room.MessageCount++
	return nil
}

// AddMember 测试与单机模式的成员写入
func (s *MemRoomStore) AddMember(m *RoomMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.RoomID] = append(s.members[m.RoomID], *m)
}

// MemMessageStore 内存消息存储
type MemMessageStore struct {
	mu         sync.RWMutex
	messages   map[string]*Message
	byRoom     map[string][]string
	deliveries []*Delivery
}

// NewMemMessageStore NewMemMessageStore
func NewMemMessageStore() *MemMessageStore {
	return &MemMessageStore{
		messages: make(map[string]*Message),
		byRoom:   make(map[string][]string),
	}
}

// SaveMessage SaveMessage
func (s *MemMessageStore) SaveMessage(msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *msg
	s.messages[msg.ID] = &clone
	s.byRoom[msg.RoomID] = append(s.byRoom[msg.RoomID], msg.ID)
	return nil
}

// GetMessage GetMessage
func (s *MemMessageStore) GetMessage(id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *msg
	return &clone, nil
}

// RecentMessages 返回房间最近 limit 条，按写入顺序
func (s *MemMessageStore) RecentMessages(roomID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRoom[roomID]
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	msgs := make([]Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, *s.messages[id])
	}
	return msgs, nil
}

// MarkRead 集合并写入已读，返回本次新增的消息 ID
func (s *MemMessageStore) MarkRead(roomID, userID string, messageIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		msg, ok := s.messages[id]
		if !ok || msg.RoomID != roomID {
			continue
		}
		readBy := mapset.NewThreadUnsafeSet()
		for _, u := range msg.ReadByList() {
			readBy.Add(u)
		}
		if readBy.Add(userID) {
			users := make([]string, 0, readBy.Cardinality())
			for u := range readBy.Iter() {
				users = append(users, u.(string))
			}
			msg.SetReadByList(users)
			added = append(added, id)
		}
	}
	return added, nil
}

// UpdateMessage UpdateMessage
func (s *MemMessageStore) UpdateMessage(msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; !ok {
		return ErrNotFound
	}
	clone := *msg
	s.messages[msg.ID] = &clone
	return nil
}

// SaveDeliveries SaveDeliveries
func (s *MemMessageStore) SaveDeliveries(deliveries []*Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, deliveries...)
	return nil
}

// DeliveryCount 审计流水条数，测试用
func (s *MemMessageStore) DeliveryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deliveries)
}
