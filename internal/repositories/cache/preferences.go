package cache

import (
	"context"
	"sync"
)

// Preferences stores per-user display flags.
type Preferences interface {
	BalanceHidden(ctx context.Context, userID string) (bool, error)
	SetBalanceHidden(ctx context.Context, userID string, hidden bool) error
}

// RedisPreferences keeps preferences in redis without expiry.
type RedisPreferences struct {
	cache *CacheService
}

func NewRedisPreferences(cache *CacheService) *RedisPreferences {
	return &RedisPreferences{cache: cache}
}

func (p *RedisPreferences) BalanceHidden(ctx context.Context, userID string) (bool, error) {
	var hidden bool
	if _, err := p.cache.Get(ctx, GenerateKey("prefs", "balance_hidden", userID), &hidden); err != nil {
		return false, err
	}
	return hidden, nil
}

func (p *RedisPreferences) SetBalanceHidden(ctx context.Context, userID string, hidden bool) error {
	return p.cache.SetWithTTL(ctx, GenerateKey("prefs", "balance_hidden", userID), hidden, 0)
}

// MemoryPreferences is the process-local fallback when redis is not configured.
type MemoryPreferences struct {
	mu     sync.RWMutex
	hidden map[string]bool
}

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{hidden: make(map[string]bool)}
}

func (p *MemoryPreferences) BalanceHidden(_ context.Context, userID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hidden[userID], nil
}

func (p *MemoryPreferences) SetBalanceHidden(_ context.Context, userID string, hidden bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hidden[userID] = hidden
	return nil
}
