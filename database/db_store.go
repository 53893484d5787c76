package database

import (
	"fmt"
	"log"
	"strings"

	// drivers are selected by config
	_ "github.com/go-sql-driver/mysql"
	"github.com/go-xorm/xorm"
	_ "github.com/mattn/go-sqlite3"
	"xorm.io/core"
)

// DbRoomStore 数据库房间存储
type DbRoomStore struct {
	engine *xorm.Engine
}

// NewDbRoomStore new a DbRoomStore
func NewDbRoomStore(engine *xorm.Engine) *DbRoomStore {
	err := engine.Sync2(new(Room), new(RoomMember))
	if err != nil {
		log.Println(err)
	}
	return &DbRoomStore{engine: engine}
}

// GetRoom GetRoom
func (s *DbRoomStore) GetRoom(id string) (*Room, error) {
	room := &Room{}
	has, err := s.engine.Where("id = ?", id).Get(room)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, ErrNotFound
	}
	return room, nil
}

// GetMember GetMember
func (s *DbRoomStore) GetMember(roomID, userID string) (*RoomMember, error) {
	member := &RoomMember{}
	has, err := s.engine.Where("room_id = ? AND user_id = ?", roomID, userID).Get(member)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, ErrNotFound
	}
	return member, nil
}

// GetMembers GetMembers
func (s *DbRoomStore) GetMembers(roomID string) ([]RoomMember, error) {
	var members []RoomMember
	err := s.engine.Where("room_id = ?", roomID).Find(&members)
	return members, err
}

// FindPrivateRoom FindPrivateRoom
func (s *DbRoomStore) FindPrivateRoom(pairKey string) (*Room, error) {
	room := &Room{}
	has, err := s.engine.Where("pair_key = ?", pairKey).Get(room)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, ErrNotFound
	}
	return room, nil
}

// CreateRoom 同一事务写入房间与成员。pair_key 唯一索引兜底并发创建，
// 冲突翻译成 ErrDuplicateRoom 让调用方重查。
func (s *DbRoomStore) CreateRoom(room *Room, members []*RoomMember) error {
	session := s.engine.NewSession()
	defer session.Close()
	if err := session.Begin(); err != nil {
		return err
	}
	if _, err := session.Insert(room); err != nil {
		session.Rollback()
		if isDuplicateErr(err) {
			return ErrDuplicateRoom
		}
		return err
	}
	for _, m := range members {
		if _, err := session.Insert(m); err != nil {
			session.Rollback()
			return err
		}
	}
	return session.Commit()
}

// UpdateLastMessage 以房间 ID 为键更新摘要。时间戳条件实现 last-write-wins，
// 并发发送下摘要永远指向服务端时间最晚的那条。
func (s *DbRoomStore) UpdateLastMessage(roomID string, last *LastMessage) error {
	session := s.engine.NewSession()
	defer session.Close()
	if err := session.Begin(); err != nil {
		return err
	}
	if _, err := session.Exec(
		"UPDATE t_room SET message_count = message_count + 1 WHERE id = ?", roomID); err != nil {
		session.Rollback()
		return err
	}
	if _, err := session.Exec(
		"UPDATE t_room SET last_message_id = ?, last_message_text = ?, last_message_sender = ?, last_message_at = ? "+
			"WHERE id = ? AND last_message_at <= ?",
		last.MessageID, last.Text, last.SenderID, last.CreatedAt, roomID, last.CreatedAt); err != nil {
		session.Rollback()
		return err
	}
	return session.Commit()
}

// DbMessageStore 数据库消息存储
type DbMessageStore struct {
	engine *xorm.Engine
}

// NewDbMessageStore new a DbMessageStore
func NewDbMessageStore(engine *xorm.Engine) *DbMessageStore {
	err := engine.Sync2(new(Message), new(Delivery))
	if err != nil {
		log.Println(err)
	}
	return &DbMessageStore{engine: engine}
}

// SaveMessage SaveMessage
func (s *DbMessageStore) SaveMessage(msg *Message) error {
	_, err := s.engine.Insert(msg)
	return err
}

// GetMessage GetMessage
func (s *DbMessageStore) GetMessage(id string) (*Message, error) {
	msg := &Message{}
	has, err := s.engine.Where("id = ?", id).Get(msg)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, ErrNotFound
	}
	return msg, nil
}

// RecentMessages 按时间倒查 limit 条后翻回正序
func (s *DbMessageStore) RecentMessages(roomID string, limit int) ([]Message, error) {
	var msgs []Message
	err := s.engine.Where("room_id = ?", roomID).Desc("created_at").Limit(limit, 0).Find(&msgs)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead 集合并写入已读。重复标记不改变集合，天然幂等。
// 读集合走 SELECT ... FOR UPDATE，并发标记同一条消息时后来的事务
// 等前一个提交后再读，并集不会被旧快照覆盖（sqlite 方言没有
// FOR UPDATE，靠库级写锁串行）。
func (s *DbMessageStore) MarkRead(roomID, userID string, messageIDs []string) ([]string, error) {
	session := s.engine.NewSession()
	defer session.Close()
	if err := session.Begin(); err != nil {
		return nil, err
	}
	added := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		msg := &Message{}
		has, err := session.ForUpdate().Where("id = ? AND room_id = ?", id, roomID).Get(msg)
		if err != nil {
			session.Rollback()
			return nil, err
		}
		if !has {
			continue
		}
		users := msg.ReadByList()
		seen := false
		for _, u := range users {
			if u == userID {
				seen = true
				break
			}
		}
		if seen {
			continue
		}
		msg.SetReadByList(append(users, userID))
		if _, err := session.Where("id = ?", id).Cols("read_by").Update(msg); err != nil {
			session.Rollback()
			return nil, err
		}
		added = append(added, id)
	}
	if err := session.Commit(); err != nil {
		return nil, err
	}
	return added, nil
}

// UpdateMessage UpdateMessage
func (s *DbMessageStore) UpdateMessage(msg *Message) error {
	affected, err := s.engine.Where("id = ?", msg.ID).
		Cols("content", "edited", "deleted", "edited_at").Update(msg)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveDeliveries SaveDeliveries
func (s *DbMessageStore) SaveDeliveries(deliveries []*Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	_, err := s.engine.Insert(deliveries)
	return err
}

// isDuplicateErr 识别 mysql/sqlite 的唯一索引冲突
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// InitDb init database, driver is mysql or sqlite3
func InitDb(driver, source string) (*xorm.Engine, error) {
	if driver == "mysql" {
		source = fmt.Sprintf("%s?charset=utf8&parseTime=True&loc=Local", source)
	}
	engine, err := xorm.NewEngine(driver, source)
	if err != nil {
		return nil, err
	}

	tbMapper := core.NewPrefixMapper(core.SnakeMapper{}, "t_")
	engine.SetTableMapper(tbMapper)
	engine.SetColumnMapper(core.SnakeMapper{})

	return engine, nil
}
