package hub

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vacualtd/vacua-chat/database"
	"github.com/vacualtd/vacua-chat/storage"
	"github.com/vacualtd/vacua-chat/wire"
)

// RoomResolver 拿到房间的广播 actor
type RoomResolver interface {
	RoomFor(roomID string) *Room
}

// DeliveryJournal 已接受消息的审计日志
type DeliveryJournal interface {
	Write(record []byte) error
}

// MessagePipeline 消息收发主流程：限流、鉴权、附件、落库、按序广播。
// 任何一步失败整条消息拒绝，存储与广播都不发生。
type MessagePipeline struct {
	limiter    *RateLimiter
	authorizer *RoomAuthorizer
	rooms      database.RoomStore
	messages   database.MessageStore
	resolver   RoomResolver

	uploader    storage.Uploader
	thumbnailer storage.Thumbnailer
	journal     DeliveryJournal

	// sendMu 每房间一把发送锁，保证落库顺序与广播入队顺序一致
	mu     sync.Mutex
	sendMu map[string]*sync.Mutex
}

// NewMessagePipeline uploader/thumbnailer/journal 都可为 nil
func NewMessagePipeline(limiter *RateLimiter, authorizer *RoomAuthorizer,
	rooms database.RoomStore, messages database.MessageStore, resolver RoomResolver,
	uploader storage.Uploader, thumbnailer storage.Thumbnailer, journal DeliveryJournal) *MessagePipeline {
	return &MessagePipeline{
		limiter:     limiter,
		authorizer:  authorizer,
		rooms:       rooms,
		messages:    messages,
		resolver:    resolver,
		uploader:    uploader,
		thumbnailer: thumbnailer,
		journal:     journal,
		sendMu:      make(map[string]*sync.Mutex),
	}
}

// Send 处理 send-message。成功返回给发送方的应答，
// 其余房间连接收到 new-message 广播。
func (p *MessagePipeline) Send(conn *Connection, req *wire.SendMessage) (*wire.Ack, error) {
	if p.limiter != nil && !p.limiter.ConsumeMessage(conn.ID) {
		return nil, ErrRateLimited
	}
	if err := p.authorizer.Authorize(req.RoomID, conn.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return nil, sendFailed(errors.New("empty message"))
	}

	attachments, err := p.storeAttachments(req.Attachments)
	if err != nil {
		return nil, sendFailed(err)
	}

	msg := &database.Message{
		ID:         uuid.New().String(),
		RoomID:     req.RoomID,
		SenderID:   conn.UserID,
		SenderName: conn.UserName,
		Type:       messageType(req.Content, attachments),
		Content:    req.Content,
		ClientID:   req.ClientID,
		CreatedAt:  time.Now(),
	}
	if len(attachments) > 0 {
		data, _ := json.Marshal(attachments)
		msg.Attachments = string(data)
	}

	// 同一房间串行走 落库->入队，跨房间互不阻塞
	lock := p.roomLock(req.RoomID)
	lock.Lock()
	if err := p.messages.SaveMessage(msg); err != nil {
		lock.Unlock()
		p.discardAttachments(attachments)
		return nil, sendFailed(errors.Wrap(err, "save message"))
	}
	// 摘要和消息属于同一次写入，摘要失败整条发送失败，不广播。
	// 消息行已落库，客户端带同一 clientId 重试时由其去重。
	if err := p.rooms.UpdateLastMessage(req.RoomID, &database.LastMessage{
		MessageID: msg.ID,
		Text:      summaryText(msg),
		SenderID:  msg.SenderID,
		CreatedAt: msg.CreatedAt,
	}); err != nil {
		lock.Unlock()
		return nil, sendFailed(errors.Wrap(err, "update room summary"))
	}
	info := hydrate(msg)
	if room := p.resolver.RoomFor(req.RoomID); room != nil {
		room.Broadcast(wire.MakeMessage(&wire.NewMessage{
			RoomID:  req.RoomID,
			Message: *info,
		}), conn.ID, nil)
	}
	lock.Unlock()

	p.journalAccepted(msg)

	return &wire.Ack{
		Success:   true,
		MessageID: msg.ID,
		ClientID:  req.ClientID,
	}, nil
}

// Edit 处理 edit-message，只有发送者本人可以编辑。
// 和 Send 走同一个消息桶和房间锁，编辑广播顺序与落库顺序一致。
func (p *MessagePipeline) Edit(conn *Connection, req *wire.EditMessage) (*wire.Ack, error) {
	if p.limiter != nil && !p.limiter.ConsumeMessage(conn.ID) {
		return nil, ErrRateLimited
	}
	if err := p.authorizer.Authorize(req.RoomID, conn.UserID); err != nil {
		return nil, err
	}

	lock := p.roomLock(req.RoomID)
	lock.Lock()
	defer lock.Unlock()
	msg, err := p.messages.GetMessage(req.MessageID)
	if err != nil || msg.RoomID != req.RoomID {
		return nil, ErrNotFound
	}
	if msg.SenderID != conn.UserID {
		return nil, ErrAccessDenied
	}
	if msg.Deleted {
		return nil, ErrNotFound
	}

	msg.Content = req.Content
	msg.Edited = true
	msg.EditedAt = time.Now()
	if err := p.messages.UpdateMessage(msg); err != nil {
		return nil, sendFailed(errors.Wrap(err, "update message"))
	}

	if room := p.resolver.RoomFor(req.RoomID); room != nil {
		room.Broadcast(wire.MakeMessage(&wire.MessageUpdated{
			RoomID:  req.RoomID,
			Message: *hydrate(msg),
		}), conn.ID, nil)
	}
	return &wire.Ack{Success: true, MessageID: msg.ID}, nil
}

// Delete 处理 delete-message。发送者本人或房间管理员可删，
// 只打墓碑标记，记录保留。
func (p *MessagePipeline) Delete(conn *Connection, req *wire.DeleteMessage) (*wire.Ack, error) {
	if p.limiter != nil && !p.limiter.ConsumeMessage(conn.ID) {
		return nil, ErrRateLimited
	}
	if err := p.authorizer.Authorize(req.RoomID, conn.UserID); err != nil {
		return nil, err
	}

	lock := p.roomLock(req.RoomID)
	lock.Lock()
	defer lock.Unlock()
	msg, err := p.messages.GetMessage(req.MessageID)
	if err != nil || msg.RoomID != req.RoomID {
		return nil, ErrNotFound
	}
	if msg.SenderID != conn.UserID &&
		!p.authorizer.HasRole(req.RoomID, conn.UserID, wire.RoleAdmin, wire.RoleModerator) {
		return nil, ErrAccessDenied
	}

	msg.Deleted = true
	msg.Content = ""
	if err := p.messages.UpdateMessage(msg); err != nil {
		return nil, sendFailed(errors.Wrap(err, "delete message"))
	}

	if room := p.resolver.RoomFor(req.RoomID); room != nil {
		room.Broadcast(wire.MakeMessage(&wire.MessageDeleted{
			RoomID:    req.RoomID,
			MessageID: msg.ID,
			UserID:    conn.UserID,
		}), conn.ID, nil)
	}
	return &wire.Ack{Success: true, MessageID: msg.ID}, nil
}

// storeAttachments 上传全部附件。任何一个失败整批作废，
// 已经传上去的调用 Remove 清理；缩略图失败只记日志。
func (p *MessagePipeline) storeAttachments(attachments []wire.Attachment) ([]wire.AttachmentInfo, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	if p.uploader == nil {
		return nil, errors.New("attachment storage not configured")
	}
	ctx := context.Background()
	stored := make([]wire.AttachmentInfo, 0, len(attachments))
	for _, att := range attachments {
		key := uuid.New().String() + "/" + att.Name
		obj, err := p.uploader.Upload(ctx, key, att.ContentType, att.Data)
		if err != nil {
			p.discardAttachments(stored)
			return nil, errors.Wrapf(err, "upload %s", att.Name)
		}
		info := wire.AttachmentInfo{
			Name:        att.Name,
			ContentType: att.ContentType,
			URL:         obj.URL,
			Key:         obj.Key,
			Size:        obj.Size,
		}
		if p.thumbnailer != nil && strings.HasPrefix(att.ContentType, "image/") {
			thumb, err := p.thumbnailer.Thumbnail(ctx, key, att.ContentType, att.Data)
			if err != nil {
				log.Printf("thumbnail %s: %v", att.Name, err)
			} else {
				info.ThumbnailURL = thumb.URL
			}
		}
		stored = append(stored, info)
	}
	return stored, nil
}

func (p *MessagePipeline) discardAttachments(attachments []wire.AttachmentInfo) {
	if p.uploader == nil {
		return
	}
	ctx := context.Background()
	for _, att := range attachments {
		if err := p.uploader.Remove(ctx, att.Key); err != nil {
			log.Println(err)
		}
	}
}

func (p *MessagePipeline) roomLock(roomID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, has := p.sendMu[roomID]
	if !has {
		lock = &sync.Mutex{}
		p.sendMu[roomID] = lock
	}
	return lock
}

func (p *MessagePipeline) journalAccepted(msg *database.Message) {
	if p.journal == nil {
		return
	}
	record, _ := json.Marshal(&database.Delivery{
		MessageID:  msg.ID,
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		AcceptedAt: msg.CreatedAt,
	})
	if err := p.journal.Write(record); err != nil {
		log.Println(err)
	}
}

func messageType(content string, attachments []wire.AttachmentInfo) string {
	if len(attachments) == 0 {
		return wire.MsgTypeText
	}
	if strings.TrimSpace(content) != "" {
		return wire.MsgTypeMixed
	}
	for _, att := range attachments {
		if !strings.HasPrefix(att.ContentType, "image/") {
			return wire.MsgTypeFile
		}
	}
	return wire.MsgTypeImage
}

func summaryText(msg *database.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	switch msg.Type {
	case wire.MsgTypeImage:
		return "[image]"
	case wire.MsgTypeFile:
		return "[file]"
	default:
		return "[attachment]"
	}
}

// hydrate 组装广播用的完整消息。墓碑消息不带内容和附件。
func hydrate(msg *database.Message) *wire.MessageInfo {
	info := &wire.MessageInfo{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Type:       msg.Type,
		Content:    msg.Content,
		ClientID:   msg.ClientID,
		ReadBy:     msg.ReadByList(),
		Edited:     msg.Edited,
		Deleted:    msg.Deleted,
		CreatedAt:  msg.CreatedAt,
	}
	if msg.Deleted {
		info.Content = ""
		return info
	}
	if msg.Attachments != "" {
		var attachments []wire.AttachmentInfo
		if err := json.Unmarshal([]byte(msg.Attachments), &attachments); err == nil {
			info.Attachments = attachments
		}
	}
	return info
}
