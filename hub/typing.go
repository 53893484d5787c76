package hub

import (
	"sort"
	"sync"
	"time"
)

// TypingCoordinator 维护每个房间的正在输入集合。
// 每个 (room, user) 一个 TTL 定时器，重复 typing 重置而不是叠加。
type TypingCoordinator struct {
	ttl time.Duration

	mu    sync.Mutex
	rooms map[string]map[string]*typingEntry
	// notify 集合变化后的广播回调，exceptConn 非空时跳过触发方连接
	notify func(roomID string, users []string, exceptConn string)
}

// typingEntry 带代数的定时器。续期换新代，已经触发但还没拿到锁的
// 旧回调按代数识别为过期，不会误删刚续上的状态。
type typingEntry struct {
	timer *time.Timer
	gen   uint64
}

// NewTypingCoordinator notify 在集合变化后收到房间的全量输入列表
func NewTypingCoordinator(ttl time.Duration, notify func(roomID string, users []string, exceptConn string)) *TypingCoordinator {
	if ttl == 0 {
		ttl = 5 * time.Second
	}
	return &TypingCoordinator{
		ttl:    ttl,
		rooms:  make(map[string]map[string]*typingEntry),
		notify: notify,
	}
}

// SetTyping 更新输入状态并广播全量列表，触发方连接不收
func (c *TypingCoordinator) SetTyping(roomID, userID string, isTyping bool) {
	c.setTyping(roomID, userID, isTyping, "")
}

// SetTypingFrom 同 SetTyping，exceptConn 标记触发方连接
func (c *TypingCoordinator) SetTypingFrom(roomID, userID string, isTyping bool, exceptConn string) {
	c.setTyping(roomID, userID, isTyping, exceptConn)
}

func (c *TypingCoordinator) setTyping(roomID, userID string, isTyping bool, exceptConn string) {
	c.mu.Lock()
	changed := false
	users, has := c.rooms[roomID]
	if isTyping {
		if !has {
			users = make(map[string]*typingEntry)
			c.rooms[roomID] = users
		}
		if entry, typing := users[userID]; typing {
			entry.timer.Stop()
			entry.gen++
			entry.timer = c.expireTimer(roomID, userID, entry.gen)
		} else {
			entry := &typingEntry{gen: 1}
			entry.timer = c.expireTimer(roomID, userID, entry.gen)
			users[userID] = entry
			changed = true
		}
	} else if has {
		if entry, typing := users[userID]; typing {
			entry.timer.Stop()
			delete(users, userID)
			if len(users) == 0 {
				delete(c.rooms, roomID)
			}
			changed = true
		}
	}
	list := c.typingLocked(roomID)
	c.mu.Unlock()

	if changed && c.notify != nil {
		c.notify(roomID, list, exceptConn)
	}
}

// TypingUsers 房间当前输入中的用户，排序后返回
func (c *TypingCoordinator) TypingUsers(roomID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typingLocked(roomID)
}

// PurgeUser 用户离线时清掉它在所有房间的输入状态，逐房间广播
func (c *TypingCoordinator) PurgeUser(userID string) {
	c.mu.Lock()
	var touched []string
	for roomID, users := range c.rooms {
		if entry, typing := users[userID]; typing {
			entry.timer.Stop()
			delete(users, userID)
			if len(users) == 0 {
				delete(c.rooms, roomID)
			}
			touched = append(touched, roomID)
		}
	}
	lists := make(map[string][]string, len(touched))
	for _, roomID := range touched {
		lists[roomID] = c.typingLocked(roomID)
	}
	c.mu.Unlock()

	if c.notify == nil {
		return
	}
	for _, roomID := range touched {
		c.notify(roomID, lists[roomID], "")
	}
}

func (c *TypingCoordinator) expireTimer(roomID, userID string, gen uint64) *time.Timer {
	return time.AfterFunc(c.ttl, func() {
		c.expire(roomID, userID, gen)
	})
}

func (c *TypingCoordinator) expire(roomID, userID string, gen uint64) {
	c.mu.Lock()
	users, has := c.rooms[roomID]
	if !has {
		c.mu.Unlock()
		return
	}
	entry, typing := users[userID]
	if !typing || entry.gen != gen {
		// 回调触发后状态已被续期或删除，按过期代数丢弃
		c.mu.Unlock()
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(c.rooms, roomID)
	}
	list := c.typingLocked(roomID)
	c.mu.Unlock()

	if c.notify != nil {
		c.notify(roomID, list, "")
	}
}

func (c *TypingCoordinator) typingLocked(roomID string) []string {
	users := c.rooms[roomID]
	list := make([]string, 0, len(users))
	for userID := range users {
		list = append(list, userID)
	}
	sort.Strings(list)
	return list
}
