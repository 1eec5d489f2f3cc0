package bbolt

import (
	"context"
	"time"

	"go.etcd.io/bbolt"

	"github.com/UnAfraid/wg-gateway/pkg/auth"
)

const (
	refreshTokenBucket = "refresh_token"
)

// refreshTokenRepository keys tokens by their hash, the only value a client
// can present.
type refreshTokenRepository struct {
	db *bbolt.DB
}

func NewRefreshTokenRepository(db *bbolt.DB) auth.RefreshTokenRepository {
	return &refreshTokenRepository{
		db: db,
	}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) (*auth.RefreshToken, error) {
	return dbTx(ctx, r.db, refreshTokenBucket, true, func(tx *bbolt.Tx, bucket *bbolt.Bucket) (*auth.RefreshToken, error) {
		if bucket.Get([]byte(token.TokenHash)) != nil {
			return nil, auth.ErrRefreshTokenExists
		}
		return token, put(bucket, "refresh token", token.TokenHash, token)
	})
}

func (r *refreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	return dbView(ctx, r.db, refreshTokenBucket, func(bucket *bbolt.Bucket) (*auth.RefreshToken, error) {
		jsonState := bucket.Get([]byte(tokenHash))
		if jsonState == nil {
			return nil, nil
		}
		return unmarshal[auth.RefreshToken]("refresh token", jsonState)
	})
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, tokenHash string, revokedAt time.Time) (*auth.RefreshToken, error) {
	return dbTx(ctx, r.db, refreshTokenBucket, false, func(tx *bbolt.Tx, bucket *bbolt.Bucket) (*auth.RefreshToken, error) {
		jsonState := bucket.Get([]byte(tokenHash))
		if jsonState == nil {
			return nil, nil
		}

		token, err := unmarshal[auth.RefreshToken]("refresh token", jsonState)
		if err != nil {
			return nil, err
		}
		if token.RevokedAt != nil {
			return token, nil
		}

		token.RevokedAt = &revokedAt
		return token, put(bucket, "refresh token", tokenHash, token)
	})
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return dbTx(ctx, r.db, refreshTokenBucket, false, func(tx *bbolt.Tx, bucket *bbolt.Bucket) (int, error) {
		var expired [][]byte
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			token, err := unmarshal[auth.RefreshToken]("refresh token", v)
			if err != nil {
				return 0, err
			}
			if !now.Before(token.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}

		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return 0, err
			}
		}
		return len(expired), nil
	})
}
