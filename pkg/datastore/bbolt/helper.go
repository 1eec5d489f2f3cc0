package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/UnAfraid/wg-gateway/pkg/dbx"
)

func dbTx[T any](ctx context.Context, db *bbolt.DB, bucketName string, createBucketIfNotExists bool, callback func(*bbolt.Tx, *bbolt.Bucket) (T, error)) (T, error) {
	return dbx.InBBoltTransactionScopeWithResult(ctx, db, func(ctx context.Context, tx *bbolt.Tx) (result T, err error) {
		var bucket *bbolt.Bucket
		if createBucketIfNotExists {
			bucket, err = tx.CreateBucketIfNotExists([]byte(bucketName))
			if err != nil {
				return result, err
			}
		} else {
			bucket = tx.Bucket([]byte(bucketName))
			if bucket == nil {
				return result, nil
			}
		}
		return callback(tx, bucket)
	})
}

// dbView reads from bucketName; a missing bucket yields the zero result.
func dbView[T any](ctx context.Context, db *bbolt.DB, bucketName string, callback func(*bbolt.Bucket) (T, error)) (T, error) {
	return dbx.InBBoltViewScopeWithResult(ctx, db, func(tx *bbolt.Tx) (result T, err error) {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return result, nil
		}
		return callback(bucket)
	})
}

func unmarshal[T any](kind string, jsonState []byte) (*T, error) {
	var value *T
	if err := json.Unmarshal(jsonState, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return value, nil
}

func put(bucket *bbolt.Bucket, kind string, key string, value any) error {
	jsonState, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return bucket.Put([]byte(key), jsonState)
}
