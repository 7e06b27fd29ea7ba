package browser

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxRefStoreSize = 50

// RefStore remembers the refs of the last snapshot of each page, bounded by
// an LRU over page target ids. It is safe for concurrent use.
type RefStore struct {
	cache *lru.Cache[string, map[string]RoleRef]
}

// NewRefStore creates a RefStore with default capacity.
func NewRefStore() *RefStore {
	return NewRefStoreSize(defaultMaxRefStoreSize)
}

// NewRefStoreSize creates a RefStore keeping at most size pages.
func NewRefStoreSize(size int) *RefStore {
	if size <= 0 {
		size = defaultMaxRefStoreSize
	}
	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New[string, map[string]RoleRef](size)
	return &RefStore{cache: cache}
}

// Store replaces the refs known for a page.
func (rs *RefStore) Store(targetID string, refs map[string]RoleRef) {
	rs.cache.Add(targetID, refs)
}

// Resolve looks up a ref for a page.
func (rs *RefStore) Resolve(targetID, ref string) (RoleRef, bool) {
	refs, ok := rs.cache.Get(targetID)
	if !ok {
		return RoleRef{}, false
	}
	r, ok := refs[NormalizeRef(ref)]
	return r, ok
}

// Forget drops the refs of a closed page.
func (rs *RefStore) Forget(targetID string) {
	rs.cache.Remove(targetID)
}

// Len returns the number of pages with stored refs.
func (rs *RefStore) Len() int {
	return rs.cache.Len()
}

// NormalizeRef normalizes ref formats: "@e5", "ref=e5", "e5", "5" → "e5".
func NormalizeRef(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimPrefix(s, "ref=")
	if s != "" && isDigits(s) {
		return "e" + s
	}
	return s
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
