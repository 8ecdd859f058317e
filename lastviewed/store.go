// Package lastviewed persists, per order, when this client last opened the
// negotiation panel. Markers are local to one client and never sent to the server.
package lastviewed

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store reads and writes last-viewed markers
type Store interface {
	LastViewed(orderID string) (time.Time, bool)
	MarkViewed(orderID string, at time.Time) error
}

// Marker is one persisted last-viewed timestamp
type Marker struct {
	OrderID  string    `gorm:"primaryKey;size:64"`
	ViewedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for the Marker model
func (Marker) TableName() string {
	return "last_viewed_markers"
}

// MemoryStore keeps markers for the lifetime of the process
type MemoryStore struct {
	mu      sync.RWMutex
	markers map[string]time.Time
}

// NewMemoryStore creates an empty in-memory marker store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{markers: make(map[string]time.Time)}
}

func (m *MemoryStore) LastViewed(orderID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.markers[orderID]
	return t, ok
}

func (m *MemoryStore) MarkViewed(orderID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[orderID] = at.UTC()
	return nil
}

// DBStore keeps markers in a gorm database, normally a local sqlite file per profile.
// Reads are served from a cache loaded at open time.
type DBStore struct {
	db    *gorm.DB
	cache *MemoryStore
}

// OpenSQLite opens (or creates) the marker database at path. Use ":memory:" in tests.
func OpenSQLite(path string) (*DBStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open marker database: %w", err)
	}
	return NewDBStore(db)
}

// NewDBStore migrates the marker table on db and loads existing markers
func NewDBStore(db *gorm.DB) (*DBStore, error) {
	if db == nil {
		return nil, errors.New("marker database is nil")
	}
	if err := db.AutoMigrate(&Marker{}); err != nil {
		return nil, fmt.Errorf("failed to migrate marker table: %w", err)
	}

	var markers []Marker
	if err := db.Find(&markers).Error; err != nil {
		return nil, fmt.Errorf("failed to load markers: %w", err)
	}

	cache := NewMemoryStore()
	for _, m := range markers {
		cache.markers[m.OrderID] = m.ViewedAt.UTC()
	}
	return &DBStore{db: db, cache: cache}, nil
}

func (s *DBStore) LastViewed(orderID string) (time.Time, bool) {
	return s.cache.LastViewed(orderID)
}

// MarkViewed upserts the marker. The cache is only updated once the write succeeds.
func (s *DBStore) MarkViewed(orderID string, at time.Time) error {
	m := Marker{OrderID: orderID, ViewedAt: at.UTC()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"viewed_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("failed to save marker for order %s: %w", orderID, err)
	}
	return s.cache.MarkViewed(orderID, at)
}
