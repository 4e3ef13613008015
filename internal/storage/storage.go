// Package storage persists the authored part of container records in a
// sqlite database under the daemon state directory. Observed state (status,
// addresses, uptime) never lands here; the lifecycle controller re-queries
// it from the machine manager on every read.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"evalgo.org/nspawnium/internal/errdefs"
	"evalgo.org/nspawnium/models"
)

// Store wraps the sqlite database holding container records.
type Store struct {
	db *gorm.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&models.ContainerRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts or updates a record by container name.
func (s *Store) Save(record *models.ContainerRecord) error {
	return s.db.Save(record).Error
}

// Get returns the record for name, or a NotFound error.
func (s *Store) Get(name string) (*models.ContainerRecord, error) {
	var record models.ContainerRecord
	err := s.db.First(&record, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errdefs.Newf(errdefs.KindNotFound, "no record for container %q", name)
		}
		return nil, err
	}
	return &record, nil
}

// List returns all records ordered by creation time.
func (s *Store) List() ([]*models.ContainerRecord, error) {
	var records []*models.ContainerRecord
	if err := s.db.Order("created_at desc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Delete drops the record for name. Deleting an absent record is not an
// error.
func (s *Store) Delete(name string) error {
	return s.db.Delete(&models.ContainerRecord{}, "name = ?", name).Error
}
