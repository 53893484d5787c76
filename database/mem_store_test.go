package database

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPairKey(t *testing.T) {
	if PairKey("u2", "u1") != PairKey("u1", "u2") {
		t.Error("PairKey must not depend on member order")
	}
}

func TestMemRoomStore_CreateRoomDuplicate(t *testing.T) {
	store := NewMemRoomStore()
	room := &Room{ID: "r1", Type: "private", PairKey: PairKey("a", "b"), CreatedAt: time.Now()}
	if err := store.CreateRoom(room, nil); err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	other := &Room{ID: "r2", Type: "private", PairKey: PairKey("b", "a")}
	err := store.CreateRoom(other, nil)
	assert.Equal(t, ErrDuplicateRoom, err)

	found, err := store.FindPrivateRoom(PairKey("a", "b"))
	assert.NoError(t, err)
	assert.Equal(t, "r1", found.ID)
}

func TestMemRoomStore_CreateRoomConcurrent(t *testing.T) {
	store := NewMemRoomStore()
	var wg sync.WaitGroup
	created := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			room := &Room{ID: fmt.Sprintf("r%d", n), Type: "private", PairKey: PairKey("a", "b")}
			if err := store.CreateRoom(room, nil); err == nil {
				created <- room.ID
			}
		}(i)
	}
	wg.Wait()
	close(created)
	count := 0
	for range created {
		count++
	}
	assert.Equal(t, 1, count, "exactly one creation must win")
}

func TestMemRoomStore_UpdateLastMessageLWW(t *testing.T) {
	store := NewMemRoomStore()
	now := time.Now()
	store.CreateRoom(&Room{ID: "r1", Type: "group", PairKey: "r1"}, nil)

	store.UpdateLastMessage("r1", &LastMessage{MessageID: "m2", CreatedAt: now.Add(time.Second)})
	// 更早的写入到得晚，摘要不能回退
	store.UpdateLastMessage("r1", &LastMessage{MessageID: "m1", CreatedAt: now})

	room, _ := store.GetRoom("r1")
	assert.Equal(t, "m2", room.LastMessageID)
	assert.Equal(t, int64(2), room.MessageCount)
}

func TestMemMessageStore_MarkReadIdempotent(t *testing.T) {
	store := NewMemMessageStore()
	store.SaveMessage(&Message{ID: "m1", RoomID: "r1", SenderID: "a", CreatedAt: time.Now()})
	store.SaveMessage(&Message{ID: "m2", RoomID: "r1", SenderID: "a", CreatedAt: time.Now()})

	added, err := store.MarkRead("r1", "b", []string{"m1", "m2"})
	assert.NoError(t, err)
	assert.Len(t, added, 2)

	added, err = store.MarkRead("r1", "b", []string{"m1", "m2"})
	assert.NoError(t, err)
	assert.Len(t, added, 0)

	msg, _ := store.GetMessage("m1")
	assert.Equal(t, []string{"b"}, msg.ReadByList())
}

func TestMemMessageStore_RecentMessages(t *testing.T) {
	store := NewMemMessageStore()
	for i := 0; i < 10; i++ {
		store.SaveMessage(&Message{ID: fmt.Sprintf("m%d", i), RoomID: "r1"})
	}
	msgs, err := store.RecentMessages("r1", 3)
	assert.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.Equal(t, "m7", msgs[0].ID)
	assert.Equal(t, "m9", msgs[2].ID)
}
