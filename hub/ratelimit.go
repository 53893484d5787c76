package hub

import (
	"sync"
	"time"
)

// TokenBucket 单个用户的令牌桶。被拒绝的请求不结算补充量，
// 连续两次拒绝读到的余量完全一致。
type TokenBucket struct {
	capacity float64
	rate     float64 // 每秒补充令牌数

	tokens   float64
	lastFill time.Time
}

// NewTokenBucket 新建满桶
func NewTokenBucket(capacity, rate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity: capacity,
		rate:     rate,
		tokens:   capacity,
		lastFill: now,
	}
}

// Consume 尝试取走一个令牌。成功时才把按时间补发的令牌写回。
func (b *TokenBucket) Consume(now time.Time) bool {
	tokens := b.refilled(now)
	if tokens < 1 {
		return false
	}
	b.tokens = tokens - 1
	b.lastFill = now
	return true
}

// Tokens 当前余量（只读，不结算）
func (b *TokenBucket) Tokens(now time.Time) float64 {
	return b.refilled(now)
}

func (b *TokenBucket) refilled(now time.Time) float64 {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	tokens := b.tokens + elapsed*b.rate
	if tokens > b.capacity {
		tokens = b.capacity
	}
	return tokens
}

// RateLimiter 按连接维护两套独立令牌桶：
// 普通事件一套，发消息一套更严的。
type RateLimiter struct {
	eventCapacity   float64
	eventRate       float64
	messageCapacity float64
	messageRate     float64

	mu      sync.Mutex
	events  map[string]*TokenBucket
	message map[string]*TokenBucket

	// now 可注入，测试用
	now func() time.Time
}

// NewRateLimiter NewRateLimiter
func NewRateLimiter(eventCapacity, eventRate, messageCapacity, messageRate float64) *RateLimiter {
	return &RateLimiter{
		eventCapacity:   eventCapacity,
		eventRate:       eventRate,
		messageCapacity: messageCapacity,
		messageRate:     messageRate,
		events:          make(map[string]*TokenBucket),
		message:         make(map[string]*TokenBucket),
		now:             time.Now,
	}
}

// ConsumeEvent 普通事件取令牌
func (l *RateLimiter) ConsumeEvent(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	bucket, has := l.events[key]
	if !has {
		bucket = NewTokenBucket(l.eventCapacity, l.eventRate, now)
		l.events[key] = bucket
	}
	return bucket.Consume(now)
}

// ConsumeMessage 发消息取令牌
func (l *RateLimiter) ConsumeMessage(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	bucket, has := l.message[key]
	if !has {
		bucket = NewTokenBucket(l.messageCapacity, l.messageRate, now)
		l.message[key] = bucket
	}
	return bucket.Consume(now)
}

// MessageTokens 消息桶余量，不结算
func (l *RateLimiter) MessageTokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, has := l.message[key]
	if !has {
		return l.messageCapacity
	}
	return bucket.Tokens(l.now())
}

// Release 连接断开后回收桶
func (l *RateLimiter) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, key)
	delete(l.message, key)
}
