package remote

import (
	"sync"
	"time"

	"github.com/set-night/sofia/internal/domain"
)

// ChatsCache holds the saved-chats list for a short time.
type ChatsCache struct {
	mu       sync.RWMutex
	chats    []domain.Session
	cachedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

func NewChatsCache(ttl time.Duration) *ChatsCache {
	return &ChatsCache{ttl: ttl, now: time.Now}
}

func (c *ChatsCache) Get() []domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.chats == nil || c.now().Sub(c.cachedAt) > c.ttl {
		return nil
	}
	return c.chats
}

func (c *ChatsCache) Set(chats []domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if chats == nil {
		chats = []domain.Session{}
	}
	c.chats = chats
	c.cachedAt = c.now()
}

func (c *ChatsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats = nil
}
