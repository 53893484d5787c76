package hub

import (
	"log"
	"sync"
	"time"

	"github.com/vacualtd/vacua-chat/database"
	"github.com/vacualtd/vacua-chat/wire"
)

// 在线状态
const (
	StatusOnline  = "online"
	StatusIdle    = "idle"
	StatusOffline = "offline"
)

type presenceState struct {
	status     string
	lastActive time.Time
	// manual 手动设置的状态不被闲置扫描覆盖
	manual bool
}

// PresenceTracker 跟踪用户在线状态。用户在线当且仅当注册表里
// 还有它的活跃连接；离线后保留最后活跃时间。
type PresenceTracker struct {
	registry *ConnectionRegistry
	// cache 集群模式下共享到 redis，单机为 nil
	cache    database.PresenceCache
	serverID string

	idleAfter     time.Duration
	sweepInterval time.Duration

	mu     sync.Mutex
	states map[string]*presenceState

	broadcast func(update *wire.PresenceUpdate)
	quit      chan struct{}
}

// NewPresenceTracker NewPresenceTracker
func NewPresenceTracker(registry *ConnectionRegistry, cache database.PresenceCache, serverID string,
	idleAfter, sweepInterval time.Duration, broadcast func(update *wire.PresenceUpdate)) *PresenceTracker {
	if idleAfter == 0 {
		idleAfter = 5 * time.Minute
	}
	if sweepInterval == 0 {
		sweepInterval = 30 * time.Second
	}
	tracker := &PresenceTracker{
		registry:      registry,
		cache:         cache,
		serverID:      serverID,
		idleAfter:     idleAfter,
		sweepInterval: sweepInterval,
		states:        make(map[string]*presenceState),
		broadcast:     broadcast,
		quit:          make(chan struct{}),
	}
	go tracker.sweepLoop()
	return tracker
}

// UserOnline 用户第一条连接建立
func (t *PresenceTracker) UserOnline(userID string) {
	t.transition(userID, StatusOnline, false)
}

// UserOffline 用户最后一条连接断开。状态记录保留，供最后活跃时间查询。
func (t *PresenceTracker) UserOffline(userID string) {
	if t.registry.IsOnline(userID) {
		// 还有其它设备在线
		return
	}
	t.transition(userID, StatusOffline, false)
	if t.cache != nil {
		if err := t.cache.DelPresence(userID); err != nil {
			log.Println(err)
		}
	}
}

// Activity 用户有动作。闲置中的用户自动回到 online。
func (t *PresenceTracker) Activity(userID string) {
	t.mu.Lock()
	state, has := t.states[userID]
	if !has || state.status == StatusOffline {
		t.mu.Unlock()
		return
	}
	state.lastActive = time.Now()
	if state.status != StatusIdle {
		t.mu.Unlock()
		return
	}
	state.status = StatusOnline
	state.manual = false
	update := t.updateLocked(userID, state)
	t.mu.Unlock()

	t.publish(update)
}

// SetStatus 手动设置状态（如 idle），离线用户忽略
func (t *PresenceTracker) SetStatus(userID, status string) {
	if status != StatusOnline && status != StatusIdle {
		return
	}
	if !t.registry.IsOnline(userID) {
		return
	}
	t.transition(userID, status, true)
}

// GetPresence 查询状态，从未见过的用户视为 offline
func (t *PresenceTracker) GetPresence(userID string) (status string, lastActive time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, has := t.states[userID]
	if !has {
		return StatusOffline, time.Time{}
	}
	return state.status, state.lastActive
}

// Snapshot 所有非离线用户的状态
func (t *PresenceTracker) Snapshot() []*wire.PresenceUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*wire.PresenceUpdate, 0, len(t.states))
	for userID, state := range t.states {
		if state.status == StatusOffline {
			continue
		}
		out = append(out, &wire.PresenceUpdate{
			UserID:     userID,
			Status:     state.status,
			LastActive: state.lastActive,
		})
	}
	return out
}

// Close 停止闲置扫描，集群模式下清掉本节点的共享状态
func (t *PresenceTracker) Close() {
	close(t.quit)
	if t.cache != nil {
		if err := t.cache.DelServer(t.serverID); err != nil {
			log.Println(err)
		}
	}
}

func (t *PresenceTracker) transition(userID, status string, manual bool) {
	t.mu.Lock()
	state, has := t.states[userID]
	if !has {
		state = &presenceState{}
		t.states[userID] = state
	}
	if state.status == status {
		state.lastActive = time.Now()
		t.mu.Unlock()
		return
	}
	state.status = status
	state.manual = manual
	state.lastActive = time.Now()
	update := t.updateLocked(userID, state)
	t.mu.Unlock()

	t.publish(update)
}

func (t *PresenceTracker) updateLocked(userID string, state *presenceState) *wire.PresenceUpdate {
	return &wire.PresenceUpdate{
		UserID:     userID,
		Status:     state.status,
		LastActive: state.lastActive,
	}
}

func (t *PresenceTracker) publish(update *wire.PresenceUpdate) {
	if t.cache != nil {
		rec := &database.PresenceRecord{
			UserID:     update.UserID,
			Status:     update.Status,
			LastActive: update.LastActive,
			ServerID:   t.serverID,
		}
		var err error
		if update.Status == StatusOffline {
			err = t.cache.DelPresence(update.UserID)
		} else {
			err = t.cache.SetPresence(rec)
		}
		if err != nil {
			log.Println(err)
		}
	}
	if t.broadcast != nil {
		t.broadcast(update)
	}
}

func (t *PresenceTracker) sweepLoop() {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep(time.Now())
		case <-t.quit:
			return
		}
	}
}

// sweep 把超过 idleAfter 无动作的在线用户转为 idle
func (t *PresenceTracker) sweep(now time.Time) {
	t.mu.Lock()
	var updates []*wire.PresenceUpdate
	for userID, state := range t.states {
		if state.status != StatusOnline || state.manual {
			continue
		}
		if now.Sub(state.lastActive) < t.idleAfter {
			continue
		}
		state.status = StatusIdle
		updates = append(updates, t.updateLocked(userID, state))
	}
	t.mu.Unlock()

	for _, update := range updates {
		t.publish(update)
	}
}
