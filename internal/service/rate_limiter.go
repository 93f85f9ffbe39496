package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vitalab/vitalab-backend/internal/domain"
	"github.com/vitalab/vitalab-backend/internal/platform/kv"
	"github.com/vitalab/vitalab-backend/pkg/logger"
)

const (
	codeTTL      = 300 * time.Second
	sendCooldown = 60 * time.Second
	hourlyLimit  = 5
	hourlyTTL    = time.Hour
)

func codeKey(phone string) string {
	return "sms:code:" + phone
}

func lastSendKey(phone string) string {
	return "sms:last_send:" + phone
}

// hourlyKey buckets by wall-clock hour, not a sliding window; a burst across
// the hour boundary can reach 2x the cap. Kept as-is on purpose.
func hourlyKey(phone string, t time.Time) string {
	return fmt.Sprintf("sms:hourly:%s:%s", phone, t.Format("2006010215"))
}

// RateLimiter gates code issuance per phone: a 60s cooldown between sends
// and at most 5 sends per wall-clock hour. Both gates are claimed with
// atomic store primitives so concurrent requests for the same phone cannot
// slip through together.
type RateLimiter struct {
	store kv.Store
	now   func() time.Time
}

func NewRateLimiter(store kv.Store) *RateLimiter {
	return &RateLimiter{store: store, now: time.Now}
}

// Reservation is a claimed send slot. Release rolls it back when the
// dispatch it was claimed for never happened.
type Reservation struct {
	limiter     *RateLimiter
	cooldownKey string
	bucketKey   string
}

// Reserve claims a send slot for phone. A nil error means the caller may
// dispatch; otherwise the returned error is ErrRateLimited with the
// user-visible reason.
func (l *RateLimiter) Reserve(ctx context.Context, phone string) (*Reservation, error) {
	now := l.now()
	cooldownKey := lastSendKey(phone)

	claimed, err := l.store.SetNX(ctx, cooldownKey, strconv.FormatInt(now.Unix(), 10), sendCooldown)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "发送验证码失败，请稍后重试", err)
	}
	if !claimed {
		return nil, domain.E(domain.ErrRateLimited, fmt.Sprintf("请%d秒后再试", l.cooldownRemaining(ctx, cooldownKey, now)))
	}

	bucketKey := hourlyKey(phone, now)
	count, err := l.store.Incr(ctx, bucketKey)
	if err != nil {
		l.rollback(ctx, cooldownKey, "")
		return nil, domain.Wrap(domain.ErrServerError, "发送验证码失败，请稍后重试", err)
	}
	if count == 1 {
		if err := l.store.Expire(ctx, bucketKey, hourlyTTL); err != nil {
			logger.WarnContext(ctx, "Failed to set hourly bucket TTL", "error", err, "key", bucketKey)
		}
	}
	if count > hourlyLimit {
		l.rollback(ctx, cooldownKey, bucketKey)
		return nil, domain.E(domain.ErrRateLimited, "发送次数过多，请稍后再试")
	}

	return &Reservation{limiter: l, cooldownKey: cooldownKey, bucketKey: bucketKey}, nil
}

// Release undoes the claim so a failed dispatch neither starts a cooldown
// nor consumes hourly quota. Best-effort: errors are logged, not returned.
func (r *Reservation) Release(ctx context.Context) {
	r.limiter.rollback(ctx, r.cooldownKey, r.bucketKey)
}

func (l *RateLimiter) rollback(ctx context.Context, cooldownKey, bucketKey string) {
	if err := l.store.Del(ctx, cooldownKey); err != nil {
		logger.WarnContext(ctx, "Failed to release cooldown claim", "error", err, "key", cooldownKey)
	}
	if bucketKey == "" {
		return
	}
	if _, err := l.store.Decr(ctx, bucketKey); err != nil {
		logger.WarnContext(ctx, "Failed to release hourly claim", "error", err, "key", bucketKey)
	}
}

// cooldownRemaining computes the seconds left from the stored send
// timestamp, falling back to the key TTL when the value is unreadable.
func (l *RateLimiter) cooldownRemaining(ctx context.Context, cooldownKey string, now time.Time) int64 {
	if v, err := l.store.Get(ctx, cooldownKey); err == nil && v != "" {
		if sentAt, err := strconv.ParseInt(v, 10, 64); err == nil {
			remaining := int64(sendCooldown/time.Second) - (now.Unix() - sentAt)
			return clampSeconds(remaining)
		}
	}
	if ttl, err := l.store.TTL(ctx, cooldownKey); err == nil && ttl > 0 {
		return clampSeconds(int64((ttl + time.Second - 1) / time.Second))
	}
	return 1
}

func clampSeconds(s int64) int64 {
	if s < 1 {
		return 1
	}
	if s > int64(sendCooldown/time.Second) {
		return int64(sendCooldown / time.Second)
	}
	return s
}
