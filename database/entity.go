package database

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Room 房间实体。LastMessage* 为冗余摘要，每次成功发送后必须更新。
type Room struct {
	ID   string `xorm:"pk varchar(64) 'id'"`
	Type string `xorm:"varchar(16)"` // private | group | community
	Name string `xorm:"varchar(128)"`
	// PairKey 私聊房间的去重键（成员对排序拼接）。非私聊房间填自身 ID，
	// 保证唯一索引始终成立。
	PairKey           string `xorm:"varchar(160) unique 'pair_key'"`
	LastMessageID     string `xorm:"varchar(64)"`
	LastMessageText   string `xorm:"varchar(256)"`
	LastMessageSender string `xorm:"varchar(64)"`
	LastMessageAt     time.Time
	MessageCount      int64
	CreatedAt         time.Time
}

// RoomMember 房间成员及角色
type RoomMember struct {
	ID       int64     `xorm:"pk autoincr 'id'"`
	RoomID   string    `xorm:"varchar(64) index unique(room_user)"`
	UserID   string    `xorm:"varchar(64) index unique(room_user)"`
	Role     string    `xorm:"varchar(16)"` // admin | moderator | member
	JoinedAt time.Time
}

// Message 聊天消息。删除只打墓碑标记，记录永不物理删除。
type Message struct {
	ID         string `xorm:"pk varchar(64) 'id'"`
	RoomID     string `xorm:"varchar(64) index"`
	SenderID   string `xorm:"varchar(64)"`
	SenderName string `xorm:"varchar(128)"`
	Type       string `xorm:"varchar(16)"` // text | image | file | mixed | system
	Content    string `xorm:"varchar(2048)"`
	// Attachments / ReadBy 以 JSON 存储，保留文档库的结构
	Attachments string `xorm:"text"`
	ReadBy      string `xorm:"text"`
	ClientID    string `xorm:"varchar(128)"`
	Edited      bool
	Deleted     bool
	CreatedAt   time.Time
	EditedAt    time.Time
}

// LastMessage 房间摘要的一次原子更新，按 CreatedAt last-write-wins
type LastMessage struct {
	MessageID string
	Text      string
	SenderID  string
	CreatedAt time.Time
}

// Delivery 已接受消息的审计流水，由 journal 批量落库
type Delivery struct {
	ID         int64  `xorm:"pk autoincr 'id'"`
	MessageID  string `xorm:"varchar(64) index"`
	RoomID     string `xorm:"varchar(64) index"`
	SenderID   string `xorm:"varchar(64)"`
	AcceptedAt time.Time
}

// PresenceRecord 用户在线状态，集群模式下放到 redis 共享
type PresenceRecord struct {
	UserID       string    `json:"userId"`
	Status       string    `json:"status"` // online | idle | offline
	LastActive   time.Time `json:"lastActive"`
	ConnectionID string    `json:"connectionId"`
	ServerID     string    `json:"serverId"`
}

// ReadByList 解出已读用户列表
func (m *Message) ReadByList() []string {
	if m.ReadBy == "" {
		return nil
	}
	var users []string
	if err := json.Unmarshal([]byte(m.ReadBy), &users); err != nil {
		return nil
	}
	return users
}

// SetReadByList 写回已读用户列表
func (m *Message) SetReadByList(users []string) {
	if len(users) == 0 {
		m.ReadBy = ""
		return
	}
	data, _ := json.Marshal(users)
	m.ReadBy = string(data)
}

// PairKey 生成私聊房间去重键，与成员顺序无关
func PairKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}
