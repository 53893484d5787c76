package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vacualtd/vacua-chat/database"
	"github.com/vacualtd/vacua-chat/wire"
)

// PrivateRoomResolver 解析两人私聊房间。同一对用户只允许一个房间，
// 并发创建靠存储层 pair_key 唯一约束裁决，败者重查胜者的房间。
type PrivateRoomResolver struct {
	rooms database.RoomStore
}

// NewPrivateRoomResolver NewPrivateRoomResolver
func NewPrivateRoomResolver(rooms database.RoomStore) *PrivateRoomResolver {
	return &PrivateRoomResolver{rooms: rooms}
}

// GetOrCreate 找到或创建 userA/userB 的私聊房间。
// created 表示房间是否本次新建。
func (r *PrivateRoomResolver) GetOrCreate(userA, userB string) (room *database.Room, created bool, err error) {
	pairKey := database.PairKey(userA, userB)

	room, err = r.rooms.FindPrivateRoom(pairKey)
	if err == nil {
		return room, false, nil
	}
	if err != database.ErrNotFound {
		return nil, false, errors.Wrap(err, "find private room")
	}

	now := time.Now()
	room = &database.Room{
		ID:        uuid.New().String(),
		Type:      wire.RoomTypePrivate,
		PairKey:   pairKey,
		CreatedAt: now,
	}
	members := []*database.RoomMember{
		{RoomID: room.ID, UserID: userA, Role: wire.RoleMember, JoinedAt: now},
		{RoomID: room.ID, UserID: userB, Role: wire.RoleMember, JoinedAt: now},
	}
	err = r.rooms.CreateRoom(room, members)
	if err == nil {
		return room, true, nil
	}
	if err != database.ErrDuplicateRoom {
		return nil, false, errors.Wrap(err, "create private room")
	}

	// 并发败者，读胜者刚建好的房间
	room, err = r.rooms.FindPrivateRoom(pairKey)
	if err != nil {
		return nil, false, errors.Wrap(err, "refetch private room")
	}
	return room, false, nil
}

// RoomInfo 组装 wire 层房间摘要
func (r *PrivateRoomResolver) RoomInfo(room *database.Room) (*wire.RoomInfo, error) {
	members, err := r.rooms.GetMembers(room.ID)
	if err != nil {
		return nil, err
	}
	userIDs := make([]string, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}
	return &wire.RoomInfo{
		ID:        room.ID,
		Type:      room.Type,
		Members:   userIDs,
		CreatedAt: room.CreatedAt,
	}, nil
}
