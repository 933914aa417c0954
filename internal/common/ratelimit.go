package common

import (
	"sync"
	"time"
)

// RateLimiter ограничивает количество отчётов на автора.
// Использует алгоритм скользящего окна.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[int64][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter создаёт лимитер. limit <= 0 означает «без ограничений».
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	if limit > 0 {
		go rl.cleanup()
	}
	return rl
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе cleanup будет жить вечно).
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow регистрирует попытку автора и сообщает, укладывается ли она в лимит.
func (rl *RateLimiter) Allow(authorID int64) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := rl.prune(rl.requests[authorID], now.Add(-rl.window))

	if len(recent) >= rl.limit {
		rl.requests[authorID] = recent
		return false
	}

	rl.requests[authorID] = append(recent, now)
	return true
}

// Release возвращает автору последнюю засчитанную попытку.
// Вызывается, если принятый лимитером отчёт так и не сохранился.
func (rl *RateLimiter) Release(authorID int64) {
	if rl.limit <= 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	times := rl.requests[authorID]
	if len(times) == 0 {
		return
	}
	rl.requests[authorID] = times[:len(times)-1]
}

func (rl *RateLimiter) prune(times []time.Time, cutoff time.Time) []time.Time {
	var recent []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-rl.window)
			for authorID, times := range rl.requests {
				recent := rl.prune(times, cutoff)
				if len(recent) == 0 {
					delete(rl.requests, authorID)
				} else {
					rl.requests[authorID] = recent
				}
			}
			rl.mu.Unlock()
		}
	}
}
