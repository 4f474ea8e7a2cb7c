package llm

import (
	"container/list"
	"context"
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
)

// Cached wraps a Client and memoizes completions of identical prompts.
// Only successful completions are stored.
type Cached struct {
	client Client

	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	hits     int
}

type cacheEntry struct {
	key  string
	text string
}

// NewCached wraps client with an LRU of the given capacity (<= 0 means 256)
func NewCached(client Client, capacity int) *Cached {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cached{
		client:   client,
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
	}
}

// Complete checks the cache before calling the underlying client.
func (c *Cached) Complete(ctx context.Context, prompt string) (string, error) {
	key := c.key(prompt)
	if text, ok := c.get(key); ok {
		return text, nil
	}

	text, err := c.client.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.set(key, text)
	return text, nil
}

func (c *Cached) Model() string {
	return c.client.Model()
}

// Len returns the number of cached completions
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Hits returns how many completions were served from the cache
func (c *Cached) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// key includes the model so one cache never mixes providers
func (c *Cached) key(prompt string) string {
	h := blake3.Sum256([]byte(c.client.Model() + "\x00" + prompt))
	return hex.EncodeToString(h[:])
}

func (c *Cached) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return "", false
	}
	c.lru.MoveToFront(elem)
	c.hits++
	return elem.Value.(*cacheEntry).text, true
}

func (c *Cached) set(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).text = text
		return
	}

	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, text: text})

	// Evict oldest if over capacity
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}
