package datastore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

func NewBBoltDB(databasePath string, timeout time.Duration) (*bbolt.DB, error) {
	dir := filepath.Dir(databasePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s - %w", dir, err)
	}

	db, err := bbolt.Open(databasePath, 0600, &bbolt.Options{
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s - %w", databasePath, err)
	}

	if db.IsReadOnly() {
		_ = db.Close()
		return nil, errors.New("database is readonly")
	}

	return db, nil
}
