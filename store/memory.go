package store

import (
	"context"
	"sync"
	"time"

	"github.com/rushteam/neuralcalc/core"
)

// MemoryStore 是内存实现的 Store，用于单实例部署/测试。
// 支持 TTL（过期时间）和最大条目数，进程重启后数据丢失。
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]*entry
	maxSize int
	clean   *time.Ticker
	done    chan struct{}
	once    sync.Once
}

type entry struct {
	value []byte
	ttl   *time.Time
}

// MemoryOption 内存存储配置选项
type MemoryOption func(*MemoryStore)

// WithMaxEntries 限制最大条目数（0 表示不限制），写满后丢弃最早过期/任意一条
func WithMaxEntries(n int) MemoryOption {
	return func(m *MemoryStore) {
		m.maxSize = n
	}
}

// WithCleanupInterval 设置过期清理间隔
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		if d > 0 {
			m.clean.Reset(d)
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	ms := &MemoryStore{
		data:  make(map[string]*entry),
		clean: time.NewTicker(10 * time.Second),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok || e.expired(time.Now()) {
		return nil, core.ErrStoreNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(key, value, expireAt(ttl))
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(keys))
	now := time.Now()
	for _, k := range keys {
		e, ok := m.data[k]
		if !ok || e.expired(now) {
			continue
		}
		result[k] = e.value
	}
	return result, nil
}

func (m *MemoryStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expire := expireAt(ttl)
	for k, v := range kvs {
		m.put(k, v, expire)
	}
	return nil
}

// Len 返回当前条目数（包含尚未清理的过期条目）
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() {
		m.clean.Stop()
		close(m.done)
	})
	return nil
}

// put 调用方需持有写锁
func (m *MemoryStore) put(key string, value []byte, expire *time.Time) {
	if _, exists := m.data[key]; !exists && m.maxSize > 0 && len(m.data) >= m.maxSize {
		m.evictOne()
	}
	m.data[key] = &entry{value: value, ttl: expire}
}

// evictOne 优先淘汰已过期条目，否则淘汰任意一条
func (m *MemoryStore) evictOne() {
	now := time.Now()
	var victim string
	found := false
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
			return
		}
		if !found {
			victim, found = k, true
		}
	}
	if found {
		delete(m.data, victim)
	}
}

func (m *MemoryStore) cleanup() {
	for {
		select {
		case <-m.clean.C:
			m.mu.Lock()
			now := time.Now()
			for k, e := range m.data {
				if e.expired(now) {
					delete(m.data, k)
				}
			}
			m.mu.Unlock()
		case <-m.done:
			return
		}
	}
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl != nil && now.After(*e.ttl)
}

func expireAt(ttl []int) *time.Time {
	if len(ttl) > 0 && ttl[0] > 0 {
		t := time.Now().Add(time.Duration(ttl[0]) * time.Second)
		return &t
	}
	return nil
}

var _ core.Store = (*MemoryStore)(nil)
