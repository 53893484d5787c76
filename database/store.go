package database

import "errors"

var (
	// ErrNotFound 房间/消息不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateRoom 私聊房间 pair_key 冲突，并发 getOrCreate 的败者据此重查
	ErrDuplicateRoom = errors.New("room already exists for member pair")
)

// RoomStore 定义了房间持久化操作接口
type RoomStore interface {
	GetRoom(id string) (*Room, error)
	GetMember(roomID, userID string) (*RoomMember, error)
	GetMembers(roomID string) ([]RoomMember, error)
	// FindPrivateRoom 按无序成员对查找私聊房间，不存在时返回 ErrNotFound
	FindPrivateRoom(pairKey string) (*Room, error)
	// CreateRoom 建房间并写入成员，同一事务内完成；pair_key 冲突返回 ErrDuplicateRoom
	CreateRoom(room *Room, members []*RoomMember) error
	// UpdateLastMessage 以房间 ID 为键原子更新摘要，时间戳更早的写入会被忽略
	UpdateLastMessage(roomID string, last *LastMessage) error
}

// MessageStore 定义了消息持久化操作接口
type MessageStore interface {
	SaveMessage(msg *Message) error
	GetMessage(id string) (*Message, error)
	RecentMessages(roomID string, limit int) ([]Message, error)
	// MarkRead 把消息并入用户已读集合（集合并，幂等），返回本次新增已读的消息 ID
	MarkRead(roomID, userID string, messageIDs []string) ([]string, error)
	UpdateMessage(msg *Message) error
	// SaveDeliveries 批量落审计流水，journal 的 SubFunc 调用
	SaveDeliveries(deliveries []*Delivery) error
}

// PresenceCache 集群模式下共享的在线状态缓存
type PresenceCache interface {
	SetPresence(rec *PresenceRecord) error
	GetPresence(userID string) (*PresenceRecord, error)
	DelPresence(userID string) error
	DelServer(serverID string) error
}
