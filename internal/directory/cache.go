// Package directory はスタッフ名簿のドメインロジックを提供する。
// 名簿参照のTTLキャッシュと検索サービスを含む。
package directory

import (
	"sync"
	"time"

	"github.com/hitoshi/dakoku/internal/model"
)

// cacheEntry はキャッシュされたスタッフと有効期限を保持する。
type cacheEntry struct {
	staff     model.StaffMember
	expiresAt time.Time
}

// Cache はスタッフ名簿のTTLキャッシュ。
// 期限切れエントリは参照時に破棄される。否定結果（存在しないユーザー）はキャッシュしない。
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time // テスト用に差し替え可能
}

// NewCache はCache の新しいインスタンスを生成する。
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get はキャッシュからスタッフを取得する。
// エントリが存在しないか期限切れの場合はfalseを返す。
func (c *Cache) Get(userID string) (*model.StaffMember, bool) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.Invalidate(userID)
		return nil, false
	}

	// 呼び出し元での変更がキャッシュに波及しないようコピーを返す
	staff := entry.staff
	return &staff, true
}

// Set はスタッフをキャッシュに格納する。
func (c *Cache) Set(userID string, staff model.StaffMember) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[userID] = cacheEntry{
		staff:     staff,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate は指定ユーザーのキャッシュエントリを破棄する。
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
}
