// Package iocache holds the SQL-backed stores: the subtest listing cache and
// the dispatch history.
package iocache

import (
	"sync"

	"github.com/ktestci/ktestci/internal/contract"
)

// StoreManager manages the cache and history store instances.
type StoreManager struct {
	sync.RWMutex // Protects the store pointers during initialization
	cache        contract.CacheStore
	history      contract.HistoryStore
}

var _ contract.StoreManager = &StoreManager{} // Compile-time check

// GetCacheStore returns the listing CacheStore.
func (mgr *StoreManager) GetCacheStore() contract.CacheStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.cache
}

// GetHistoryStore returns the dispatch HistoryStore.
func (mgr *StoreManager) GetHistoryStore() contract.HistoryStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.history
}
