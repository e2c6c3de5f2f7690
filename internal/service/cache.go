// cache.go — ListCache: LRU-кэш упорядоченных списков доказательств с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iamtinman67/claim-manager/evidence-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "em_list_cache_hits_total",
		Help: "Общее количество попаданий в кэш списков доказательств.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "em_list_cache_misses_total",
		Help: "Общее количество промахов кэша списков доказательств.",
	})
)

// globalKey — ключ списка всех записей (без дела).
const globalKey = ""

// ListCache — кэш результатов Registry.List по делу.
// Реестр инвалидирует затронутые дела и глобальный список синхронно,
// до возврата из Add/Update/Remove/Reorder.
//
// Каждая инвалидация увеличивает поколение ключа. Список, прочитанный до
// инвалидации, не сохраняется: SetIfGeneration сверяет поколение.
type ListCache struct {
	cache *expirable.LRU[string, []*model.EvidenceRecord]

	mu          sync.Mutex
	generations map[string]uint64
}

// NewListCache создаёт кэш с указанным максимальным количеством списков и TTL.
func NewListCache(maxSize int, ttl time.Duration) *ListCache {
	return &ListCache{
		cache:       expirable.NewLRU[string, []*model.EvidenceRecord](maxSize, nil, ttl),
		generations: make(map[string]uint64),
	}
}

// Get возвращает копию списка дела (scope == nil — глобальный список).
func (c *ListCache) Get(scope *string) ([]*model.EvidenceRecord, bool) {
	list, ok := c.cache.Get(scopeKey(scope))
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return cloneRecords(list), true
}

// Generation возвращает текущее поколение списка дела.
// Вызывается до чтения хранилища, результат передаётся в SetIfGeneration.
func (c *ListCache) Generation(scope *string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[scopeKey(scope)]
}

// Set сохраняет копию списка.
func (c *ListCache) Set(scope *string, list []*model.EvidenceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(scopeKey(scope), cloneRecords(list))
}

// SetIfGeneration сохраняет копию списка, только если дело не инвалидировалось
// после получения gen. Возвращает false, если список устарел.
func (c *ListCache) SetIfGeneration(scope *string, gen uint64, list []*model.EvidenceRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := scopeKey(scope)
	if c.generations[key] != gen {
		return false
	}
	c.cache.Add(key, cloneRecords(list))
	return true
}

// Invalidate удаляет списки указанных дел и глобальный список.
// nil-элементы соответствуют записям без дела.
func (c *ListCache) Invalidate(scopes ...*string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bump(globalKey)
	for _, s := range scopes {
		if s != nil {
			c.bump(*s)
		}
	}
}

// bump увеличивает поколение ключа и удаляет его список. Вызывается под c.mu.
func (c *ListCache) bump(key string) {
	c.generations[key]++
	c.cache.Remove(key)
}

// Len возвращает количество закэшированных списков.
func (c *ListCache) Len() int {
	return c.cache.Len()
}

func cloneRecords(list []*model.EvidenceRecord) []*model.EvidenceRecord {
	out := make([]*model.EvidenceRecord, len(list))
	for i, r := range list {
		out[i] = r.Clone()
	}
	return out
}
