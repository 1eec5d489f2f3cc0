package bbolt

import (
	"context"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/UnAfraid/wg-gateway/pkg/user"
)

const (
	userBucket = "user"
)

type userRepository struct {
	db *bbolt.DB
}

func NewUserRepository(db *bbolt.DB) user.Repository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) FindOne(ctx context.Context, options *user.FindOneOptions) (*user.User, error) {
	return dbView(ctx, r.db, userBucket, func(bucket *bbolt.Bucket) (*user.User, error) {
		if idOption := options.IdOption; idOption != nil {
			jsonState := bucket.Get([]byte(idOption.Id))
			if jsonState == nil {
				return nil, nil
			}
			return unmarshal[user.User]("user", jsonState)
		} else if usernameOption := options.UsernameOption; usernameOption != nil {
			return findUserByUsername(bucket, usernameOption.Username)
		}

		return nil, nil
	})
}

func (r *userRepository) Create(ctx context.Context, u *user.User) (*user.User, error) {
	return dbTx(ctx, r.db, userBucket, true, func(tx *bbolt.Tx, bucket *bbolt.Bucket) (*user.User, error) {
		if bucket.Get([]byte(u.Id)) != nil {
			return nil, user.ErrUserIdAlreadyExists
		}

		existing, err := findUserByUsername(bucket, u.Username)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, user.ErrUsernameAlreadyInUse
		}

		return u, put(bucket, "user", u.Id, u)
	})
}

func (r *userRepository) UpdatePassword(ctx context.Context, userId string, password string) (*user.User, error) {
	return dbTx(ctx, r.db, userBucket, true, func(tx *bbolt.Tx, bucket *bbolt.Bucket) (*user.User, error) {
		jsonState := bucket.Get([]byte(userId))
		if jsonState == nil {
			return nil, user.ErrUserNotFound
		}

		updatedUser, err := unmarshal[user.User]("user", jsonState)
		if err != nil {
			return nil, err
		}

		updatedUser.Password = password
		updatedUser.UpdatedAt = time.Now()

		return updatedUser, put(bucket, "user", updatedUser.Id, updatedUser)
	})
}

func findUserByUsername(bucket *bbolt.Bucket, username string) (*user.User, error) {
	c := bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		u, err := unmarshal[user.User]("user", v)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return nil, nil
}
