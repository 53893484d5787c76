package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vacualtd/vacua-chat/database"
	"github.com/vacualtd/vacua-chat/wire"
)

func newTestRoomStore(t *testing.T) *database.MemRoomStore {
	rooms := database.NewMemRoomStore()
	err := rooms.CreateRoom(&database.Room{
		ID:        "r1",
		Type:      wire.RoomTypeGroup,
		PairKey:   "r1",
		CreatedAt: time.Now(),
	}, []*database.RoomMember{
		{RoomID: "r1", UserID: "u1", Role: wire.RoleAdmin, JoinedAt: time.Now()},
		{RoomID: "r1", UserID: "u2", Role: wire.RoleMember, JoinedAt: time.Now()},
	})
	assert.Nil(t, err)
	return rooms
}

func TestAuthorizer_Authorize(t *testing.T) {
	auth := NewRoomAuthorizer(newTestRoomStore(t))

	assert.Nil(t, auth.Authorize("r1", "u1"))
	assert.Equal(t, ErrAccessDenied, auth.Authorize("r1", "outsider"))
	assert.Equal(t, ErrRoomRequired, auth.Authorize("", "u1"))

	// 房间不存在与无权限同样应答，不暴露房间存在性
	assert.Equal(t, ErrAccessDenied, auth.Authorize("ghost", "u1"))
}

func TestAuthorizer_HasRole(t *testing.T) {
	auth := NewRoomAuthorizer(newTestRoomStore(t))

	assert.True(t, auth.HasRole("r1", "u1", wire.RoleAdmin, wire.RoleModerator))
	assert.False(t, auth.HasRole("r1", "u2", wire.RoleAdmin, wire.RoleModerator))
	assert.True(t, auth.IsMember("r1", "u2"))
	assert.False(t, auth.IsMember("r1", "nobody"))
}
