package wire

import "time"

// 房间类型
const (
	RoomTypePrivate   = "private"
	RoomTypeGroup     = "group"
	RoomTypeCommunity = "community"
)

// 成员角色
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// 消息类型
const (
	MsgTypeText   = "text"
	MsgTypeImage  = "image"
	MsgTypeFile   = "file"
	MsgTypeMixed  = "mixed"
	MsgTypeSystem = "system"
)

// Attachment 客户端上行的附件原始数据
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"` // base64 on the wire
}

// AttachmentInfo 已入库附件，URL 为对象存储返回的外链
type AttachmentInfo struct {
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Key          string `json:"key"`
	Size         int64  `json:"size"`
}

// MessageInfo 广播给房间的完整消息
type MessageInfo struct {
	ID          string           `json:"id"`
	RoomID      string           `json:"roomId"`
	SenderID    string           `json:"senderId"`
	SenderName  string           `json:"senderName,omitempty"`
	Type        string           `json:"type"`
	Content     string           `json:"content"`
	Attachments []AttachmentInfo `json:"attachments,omitempty"`
	ClientID    string           `json:"clientId,omitempty"`
	ReadBy      []string         `json:"readBy,omitempty"`
	Edited      bool             `json:"edited,omitempty"`
	Deleted     bool             `json:"deleted,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// RoomInfo ack/私聊事件中携带的房间摘要
type RoomInfo struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// JoinRoom JoinRoom
type JoinRoom struct {
	RoomID string `json:"roomId"`
}

// Event Event
func (*JoinRoom) Event() string { return EventJoinRoom }

// LeaveRoom LeaveRoom
type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// Event Event
func (*LeaveRoom) Event() string { return EventLeaveRoom }

// SendMessage SendMessage
type SendMessage struct {
	RoomID      string       `json:"roomId"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// ClientID 客户端幂等键，应答时原样回传
	ClientID string `json:"clientId,omitempty"`
}

// Event Event
func (*SendMessage) Event() string { return EventSendMessage }

// EditMessage EditMessage
type EditMessage struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// Event Event
func (*EditMessage) Event() string { return EventEditMessage }

// DeleteMessage DeleteMessage
type DeleteMessage struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

// Event Event
func (*DeleteMessage) Event() string { return EventDeleteMessage }

// Typing Typing
type Typing struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// Event Event
func (*Typing) Event() string { return EventTyping }

// MarkRead MarkRead
type MarkRead struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

// Event Event
func (*MarkRead) Event() string { return EventMarkRead }

// InitPrivateChat InitPrivateChat
type InitPrivateChat struct {
	RecipientID string `json:"recipientId"`
}

// Event Event
func (*InitPrivateChat) Event() string { return EventInitPrivateChat }

// CreatePrivateChat CreatePrivateChat
type CreatePrivateChat struct {
	RecipientID    string `json:"recipientId"`
	InitialMessage string `json:"initialMessage,omitempty"`
}

// Event Event
func (*CreatePrivateChat) Event() string { return EventCreatePrivateChat }

// SetPresence SetPresence
type SetPresence struct {
	Status string `json:"status"`
}

// Event Event
func (*SetPresence) Event() string { return EventSetPresence }

// Ack 只发给请求方的应答
type Ack struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`
	// 私聊创建应答带回房间信息与首条消息
	Room           *RoomInfo    `json:"room,omitempty"`
	InitialMessage *MessageInfo `json:"initialMessage,omitempty"`
}

// Event Event
func (*Ack) Event() string { return EventAck }

// RoomUpdate 房间成员变化广播
type RoomUpdate struct {
	RoomID        string        `json:"roomId"`
	Type          string        `json:"type"` // user-joined | user-left
	UserID        string        `json:"userId"`
	OnlineMembers []string      `json:"onlineMembers"`
	Recent        []MessageInfo `json:"recent,omitempty"`
}

// Event Event
func (*RoomUpdate) Event() string { return EventRoomUpdate }

// NewMessage NewMessage
type NewMessage struct {
	RoomID  string      `json:"roomId"`
	Message MessageInfo `json:"message"`
}

// Event Event
func (*NewMessage) Event() string { return EventNewMessage }

// MessageUpdated MessageUpdated
type MessageUpdated struct {
	RoomID  string      `json:"roomId"`
	Message MessageInfo `json:"message"`
}

// Event Event
func (*MessageUpdated) Event() string { return EventMessageUpdated }

// MessageDeleted 墓碑标记广播，消息本体不删除
type MessageDeleted struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// Event Event
func (*MessageDeleted) Event() string { return EventMessageDeleted }

// TypingStatus 全量正在输入列表，不发增量
type TypingStatus struct {
	RoomID string   `json:"roomId"`
	Users  []string `json:"users"`
}

// Event Event
func (*TypingStatus) Event() string { return EventTypingStatus }

// MessagesRead MessagesRead
type MessagesRead struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
	UserID     string   `json:"userId"`
}

// Event Event
func (*MessagesRead) Event() string { return EventMessagesRead }

// PresenceUpdate PresenceUpdate
type PresenceUpdate struct {
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	LastActive time.Time `json:"lastActive"`
}

// Event Event
func (*PresenceUpdate) Event() string { return EventPresenceUpdate }

// PrivateChat 私聊房间创建事件，created 发起方 / received 接收方
type PrivateChat struct {
	event          string
	Room           RoomInfo     `json:"room"`
	InitialMessage *MessageInfo `json:"initialMessage,omitempty"`
}

// Event Event
func (p *PrivateChat) Event() string { return p.event }

// NewPrivateChat NewPrivateChat
func NewPrivateChat(event string, room RoomInfo, initial *MessageInfo) *PrivateChat {
	return &PrivateChat{event: event, Room: room, InitialMessage: initial}
}
