package monitor

import (
	"context"
	"math/rand"
	"time"
)

type Rand interface {
	Intn(n int) int
}

// RetryPolicy задаёт тайминги обхода: паузы между заказами, inline-ретраи
// при rate-limit и transient-ошибках, раунды отложенной очереди.
type RetryPolicy struct {
	MaxAttempts int // default: 3

	RateLimitMinBackoff time.Duration // default: 10 seconds
	RateLimitMaxBackoff time.Duration // default: 12 seconds

	TransientMinBackoff time.Duration // default: 1 second
	TransientMaxBackoff time.Duration // default: 3 seconds

	ItemMinDelay time.Duration // default: 1.9 seconds
	ItemMaxDelay time.Duration // default: 2.1 seconds

	MaxRounds       int           // default: 10
	RoundMinBackoff time.Duration // default: 15 seconds
	RoundMaxBackoff time.Duration // default: 20 seconds
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,

		RateLimitMinBackoff: 10 * time.Second,
		RateLimitMaxBackoff: 12 * time.Second,

		TransientMinBackoff: 1 * time.Second,
		TransientMaxBackoff: 3 * time.Second,

		ItemMinDelay: 1900 * time.Millisecond,
		ItemMaxDelay: 2100 * time.Millisecond,

		MaxRounds:       10,
		RoundMinBackoff: 15 * time.Second,
		RoundMaxBackoff: 20 * time.Second,
	}
}

func normalizePolicy(p RetryPolicy) RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.RateLimitMinBackoff <= 0 {
		p.RateLimitMinBackoff = def.RateLimitMinBackoff
	}
	if p.RateLimitMaxBackoff < p.RateLimitMinBackoff {
		p.RateLimitMaxBackoff = p.RateLimitMinBackoff
	}
	if p.TransientMinBackoff <= 0 {
		p.TransientMinBackoff = def.TransientMinBackoff
	}
	if p.TransientMaxBackoff < p.TransientMinBackoff {
		p.TransientMaxBackoff = p.TransientMinBackoff
	}
	if p.ItemMinDelay <= 0 {
		p.ItemMinDelay = def.ItemMinDelay
	}
	if p.ItemMaxDelay < p.ItemMinDelay {
		p.ItemMaxDelay = p.ItemMinDelay
	}
	if p.MaxRounds <= 0 {
		p.MaxRounds = def.MaxRounds
	}
	if p.RoundMinBackoff <= 0 {
		p.RoundMinBackoff = def.RoundMinBackoff
	}
	if p.RoundMaxBackoff < p.RoundMinBackoff {
		p.RoundMaxBackoff = p.RoundMinBackoff
	}
	return p
}

func newRand() Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// randDuration выбирает случайную длительность из [min, max] с шагом в мс.
func randDuration(r Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	spread := int((max - min) / time.Millisecond)
	return min + time.Duration(r.Intn(spread+1))*time.Millisecond
}

// sleepCtx ждёт d либо отмену контекста. false — контекст отменён.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
