package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"backend_inventory/metrics"
	"backend_inventory/models"
)

// DefaultListingTTL время жизни закэшированной страницы списка
const DefaultListingTTL = 300 * time.Second

// CachedPage закэшированная страница списка устройств
type CachedPage struct {
	Items    []models.Device `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	CachedAt time.Time       `json:"cached_at"`
}

// ListingCache кэш страниц списков устройств. Работает по принципу best-effort:
// ошибки кэша логируются и никогда не возвращаются вызывающему.
type ListingCache interface {
	Get(ctx context.Context, kind models.DeviceKind, page, pageSize int) (*CachedPage, bool)
	Put(ctx context.Context, kind models.DeviceKind, page, pageSize int, items []models.Device, total int64, ttl time.Duration)
	Invalidate(ctx context.Context, kind models.DeviceKind)
	InvalidateAll(ctx context.Context)
}

// RedisListingCache кэш списков в Redis
type RedisListingCache struct {
	redis  *redis.Client
	prefix string
	logger *log.Logger
}

// NewRedisListingCache создает кэш списков. Без клиента Redis кэш всегда промахивается.
func NewRedisListingCache(redisClient *redis.Client, prefix string, logger *log.Logger) *RedisListingCache {
	if prefix == "" {
		prefix = "inventory"
	}
	return &RedisListingCache{
		redis:  redisClient,
		prefix: prefix,
		logger: logger,
	}
}

func (c *RedisListingCache) pageKey(kind models.DeviceKind, page, pageSize int) string {
	return fmt.Sprintf("%s:listing:%s:%d:%d", c.prefix, kind, page, pageSize)
}

func (c *RedisListingCache) kindPattern(kind models.DeviceKind) string {
	return fmt.Sprintf("%s:listing:%s:*", c.prefix, kind)
}

// Get получает страницу из кэша
func (c *RedisListingCache) Get(ctx context.Context, kind models.DeviceKind, page, pageSize int) (*CachedPage, bool) {
	if c.redis == nil {
		metrics.IncListingCache(string(kind), metrics.CacheMiss)
		return nil, false
	}

	val, err := c.redis.Get(ctx, c.pageKey(kind, page, pageSize)).Result()
	if err == redis.Nil {
		metrics.IncListingCache(string(kind), metrics.CacheMiss)
		return nil, false
	}
	if err != nil {
		c.logf("Ошибка чтения кэша списка %s: %v", kind, err)
		metrics.IncListingCache(string(kind), metrics.CacheError)
		return nil, false
	}

	var cached CachedPage
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.logf("Поврежденная запись кэша списка %s: %v", kind, err)
		metrics.IncListingCache(string(kind), metrics.CacheError)
		return nil, false
	}

	metrics.IncListingCache(string(kind), metrics.CacheHit)
	return &cached, true
}

// Put сохраняет страницу в кэш
func (c *RedisListingCache) Put(ctx context.Context, kind models.DeviceKind, page, pageSize int, items []models.Device, total int64, ttl time.Duration) {
	if c.redis == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}

	data, err := json.Marshal(CachedPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		CachedAt: time.Now(),
	})
	if err != nil {
		c.logf("Ошибка сериализации страницы списка %s: %v", kind, err)
		return
	}

	if err := c.redis.Set(ctx, c.pageKey(kind, page, pageSize), data, ttl).Err(); err != nil {
		c.logf("Ошибка записи кэша списка %s: %v", kind, err)
		metrics.IncListingCache(string(kind), metrics.CacheError)
	}
}

// Invalidate удаляет все страницы списка одного типа
func (c *RedisListingCache) Invalidate(ctx context.Context, kind models.DeviceKind) {
	c.deletePattern(ctx, c.kindPattern(kind))
}

// InvalidateAll удаляет все страницы всех списков
func (c *RedisListingCache) InvalidateAll(ctx context.Context) {
	c.deletePattern(ctx, fmt.Sprintf("%s:listing:*", c.prefix))
}

func (c *RedisListingCache) deletePattern(ctx context.Context, pattern string) {
	if c.redis == nil {
		return
	}

	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logf("Ошибка инвалидации кэша %s: %v", pattern, err)
			metrics.IncListingCache("all", metrics.CacheError)
			return
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				c.logf("Ошибка инвалидации кэша %s: %v", pattern, err)
				metrics.IncListingCache("all", metrics.CacheError)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (c *RedisListingCache) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// MemoryListingCache кэш списков в памяти процесса; используется без Redis
type MemoryListingCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	kind      models.DeviceKind
	page      CachedPage
	expiresAt time.Time
}

// NewMemoryListingCache создает кэш списков в памяти
func NewMemoryListingCache() *MemoryListingCache {
	return &MemoryListingCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func memoryKey(kind models.DeviceKind, page, pageSize int) string {
	return fmt.Sprintf("%s:%d:%d", kind, page, pageSize)
}

// Get получает страницу из кэша
func (c *MemoryListingCache) Get(_ context.Context, kind models.DeviceKind, page, pageSize int) (*CachedPage, bool) {
	c.mu.RLock()
	entry, ok := c.entries[memoryKey(kind, page, pageSize)]
	c.mu.RUnlock()

	if !ok || !c.now().Before(entry.expiresAt) {
		metrics.IncListingCache(string(kind), metrics.CacheMiss)
		return nil, false
	}

	metrics.IncListingCache(string(kind), metrics.CacheHit)
	cached := entry.page
	cached.Items = append([]models.Device(nil), entry.page.Items...)
	return &cached, true
}

// Put сохраняет страницу в кэш
func (c *MemoryListingCache) Put(_ context.Context, kind models.DeviceKind, page, pageSize int, items []models.Device, total int64, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[memoryKey(kind, page, pageSize)] = memoryEntry{
		kind: kind,
		page: CachedPage{
			Items:    append([]models.Device(nil), items...),
			Total:    total,
			Page:     page,
			PageSize: pageSize,
			CachedAt: now,
		},
		expiresAt: now.Add(ttl),
	}
}

// Invalidate удаляет все страницы списка одного типа
func (c *MemoryListingCache) Invalidate(_ context.Context, kind models.DeviceKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if entry.kind == kind {
			delete(c.entries, key)
		}
	}
}

// InvalidateAll удаляет все страницы
func (c *MemoryListingCache) InvalidateAll(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
}
