package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_Consume(t *testing.T) {
	now := time.Now()
	bucket := NewTokenBucket(3, 1, now)

	assert.True(t, bucket.Consume(now))
	assert.True(t, bucket.Consume(now))
	assert.True(t, bucket.Consume(now))
	assert.False(t, bucket.Consume(now))

	// 1s 补一个令牌
	now = now.Add(time.Second)
	assert.True(t, bucket.Consume(now))
	assert.False(t, bucket.Consume(now))
}

func TestTokenBucket_RejectDoesNotSpend(t *testing.T) {
	now := time.Now()
	bucket := NewTokenBucket(1, 0.1, now)
	assert.True(t, bucket.Consume(now))

	// 拒绝不结算补充量，连续拒绝后桶内状态不变
	later := now.Add(5 * time.Second)
	assert.False(t, bucket.Consume(later))
	first := bucket.tokens
	assert.False(t, bucket.Consume(later.Add(time.Second)))
	assert.Equal(t, first, bucket.tokens)
	assert.Equal(t, now, bucket.lastFill)
}

func TestTokenBucket_CapacityClamp(t *testing.T) {
	now := time.Now()
	bucket := NewTokenBucket(5, 10, now)
	assert.True(t, bucket.Consume(now))

	// 长时间空闲后余量不超过桶容量
	assert.Equal(t, float64(5), bucket.Tokens(now.Add(time.Hour)))
}

func TestRateLimiter_IndependentBuckets(t *testing.T) {
	limiter := NewRateLimiter(2, 1, 1, 1)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.ConsumeMessage("u1"))
	assert.False(t, limiter.ConsumeMessage("u1"))

	// 消息桶打空不影响事件桶
	assert.True(t, limiter.ConsumeEvent("u1"))

	// 其它用户互不影响
	assert.True(t, limiter.ConsumeMessage("u2"))
}

func TestRateLimiter_Release(t *testing.T) {
	limiter := NewRateLimiter(1, 1, 1, 1)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.ConsumeMessage("u1"))
	assert.False(t, limiter.ConsumeMessage("u1"))

	limiter.Release("u1")
	assert.True(t, limiter.ConsumeMessage("u1"))
}
