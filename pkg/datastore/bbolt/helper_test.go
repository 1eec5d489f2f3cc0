package bbolt

import (
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"github.com/UnAfraid/wg-gateway/pkg/datastore"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()

	db, err := datastore.NewBBoltDB(filepath.Join(t.TempDir(), "data", "wg-gateway.db"), time.Second)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
