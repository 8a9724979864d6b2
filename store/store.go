package store

import (
	"errors"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var (
	// ErrNotFound signals an unknown record id.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidInput signals a rejected payload value, distinct from ErrNotFound.
	ErrInvalidInput = errors.New("invalid input")
)

func OpenDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Project{}, &AcceptanceRecord{}, &IssueReport{}, &RectificationAction{}); err != nil {
		return nil, err
	}
	return db, nil
}

// Store owns all record mutations. The underlying SQLite DB is effectively
// single-writer; everything serializes through the one connection.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for read-only aggregation queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}
