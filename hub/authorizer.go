package hub

import (
	"github.com/vacualtd/vacua-chat/database"
)

// RoomAuthorizer 房间访问控制，所有房间事件进入前都要过这里
type RoomAuthorizer struct {
	rooms database.RoomStore
}

// NewRoomAuthorizer NewRoomAuthorizer
func NewRoomAuthorizer(rooms database.RoomStore) *RoomAuthorizer {
	return &RoomAuthorizer{rooms: rooms}
}

// Authorize 校验用户是房间成员。roomID 为空返回 ErrRoomRequired，
// 房间不存在与非成员一律 ErrAccessDenied，不暴露房间是否存在。
func (a *RoomAuthorizer) Authorize(roomID, userID string) error {
	if roomID == "" {
		return ErrRoomRequired
	}
	member, err := a.rooms.GetMember(roomID, userID)
	if err != nil || member == nil {
		return ErrAccessDenied
	}
	return nil
}

// IsMember IsMember
func (a *RoomAuthorizer) IsMember(roomID, userID string) bool {
	return a.Authorize(roomID, userID) == nil
}

// HasRole 用户在房间拥有指定角色之一
func (a *RoomAuthorizer) HasRole(roomID, userID string, roles ...string) bool {
	member, err := a.rooms.GetMember(roomID, userID)
	if err != nil || member == nil {
		return false
	}
	for _, role := range roles {
		if member.Role == role {
			return true
		}
	}
	return false
}
