package iocache

import (
	"time"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
	"github.com/stretchr/testify/mock"
)

// MockCacheStore is a mock implementation of CacheStore for testing.
type MockCacheStore struct {
	mock.Mock
}

var _ contract.CacheStore = &MockCacheStore{} // Compile-time check

// Get implements the CacheStore interface.
func (m *MockCacheStore) Get(key string) ([]byte, int, int64, error) {
	args := m.Called(key)
	data, _ := args.Get(0).([]byte)
	return data, args.Int(1), args.Get(2).(int64), args.Error(3)
}

// Set implements the CacheStore interface.
func (m *MockCacheStore) Set(key string, data []byte, version int, ts int64) error {
	args := m.Called(key, data, version, ts)
	return args.Error(0)
}

// Close implements the CacheStore interface.
func (m *MockCacheStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// GetStatus implements the CacheStore interface.
func (m *MockCacheStore) GetStatus() (schema.CacheStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.CacheStatus), args.Error(1)
}

// MockHistoryStore is a mock implementation of HistoryStore for testing.
type MockHistoryStore struct {
	mock.Mock
}

var _ contract.HistoryStore = &MockHistoryStore{} // Compile-time check

// RecordDispatch implements the HistoryStore interface.
func (m *MockHistoryStore) RecordDispatch(rec schema.DispatchRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

// Recent implements the HistoryStore interface.
func (m *MockHistoryStore) Recent(limit int) ([]schema.DispatchRecord, error) {
	args := m.Called(limit)
	recs, _ := args.Get(0).([]schema.DispatchRecord)
	return recs, args.Error(1)
}

// Since implements the HistoryStore interface.
func (m *MockHistoryStore) Since(t time.Time) ([]schema.DispatchRecord, error) {
	args := m.Called(t)
	recs, _ := args.Get(0).([]schema.DispatchRecord)
	return recs, args.Error(1)
}

// GetStatus implements the HistoryStore interface.
func (m *MockHistoryStore) GetStatus() (schema.HistoryStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.HistoryStatus), args.Error(1)
}

// Close implements the HistoryStore interface.
func (m *MockHistoryStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
