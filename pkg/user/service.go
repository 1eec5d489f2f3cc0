package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Service interface {
	Authenticate(ctx context.Context, username string, password string) (*User, error)
	FindUser(ctx context.Context, options *FindOneOptions) (*User, error)
	CreateUser(ctx context.Context, options *CreateOptions) (*User, error)
}

type service struct {
	userRepository Repository
	cost           int
	// compared against when the username is unknown so both paths cost one bcrypt run
	dummyHash []byte
}

func NewService(
	userRepository Repository,
	initialUsername string,
	initialPassword string,
) (Service, error) {
	return newService(userRepository, initialUsername, initialPassword, defaultCost)
}

func newService(userRepository Repository, initialUsername string, initialPassword string, cost int) (*service, error) {
	dummyHash, err := generatePassword([]byte("wg-gateway"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}

	s := &service{
		userRepository: userRepository,
		cost:           cost,
		dummyHash:      dummyHash,
	}

	if err := s.initializeAdminUser(context.Background(), initialUsername, initialPassword); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *service) Authenticate(ctx context.Context, username string, password string) (*User, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.userRepository.FindOne(ctx, &FindOneOptions{
		UsernameOption: &UsernameOption{
			Username: username,
		},
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = checkPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := checkPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *service) FindUser(ctx context.Context, options *FindOneOptions) (*User, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if options.UsernameOption != nil {
		options.UsernameOption.Username = normalizeUsername(options.UsernameOption.Username)
	}
	return s.userRepository.FindOne(ctx, options)
}

func (s *service) CreateUser(ctx context.Context, options *CreateOptions) (*User, error) {
	user, err := s.processCreateUser(options)
	if err != nil {
		return nil, err
	}
	return s.userRepository.Create(ctx, user)
}

// initializeAdminUser creates the admin account when it is missing. An
// explicitly configured password is re-applied on every start so the
// environment stays the source of truth.
func (s *service) initializeAdminUser(ctx context.Context, username string, password string) error {
	username = normalizeUsername(username)
	if username == "" {
		username = "admin"
	}

	generatedRandomPassword := false
	if password == "" || password == randomPasswordSentinel {
		var err error
		password, err = generateRandomPassword(generatedPasswordLen, 4, 4)
		if err != nil {
			return fmt.Errorf("failed to generate admin password: %w", err)
		}
		generatedRandomPassword = true
	}

	existing, err := s.userRepository.FindOne(ctx, &FindOneOptions{
		UsernameOption: &UsernameOption{
			Username: username,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to find admin user: %w", err)
	}

	if existing != nil {
		if generatedRandomPassword || checkPassword([]byte(existing.Password), []byte(password)) == nil {
			return nil
		}

		hashedPassword, err := generatePassword([]byte(password), s.cost)
		if err != nil {
			return err
		}
		if _, err := s.userRepository.UpdatePassword(ctx, existing.Id, string(hashedPassword)); err != nil {
			return fmt.Errorf("failed to update admin password: %w", err)
		}
		logrus.
			WithField("username", username).
			Info("admin password updated from configuration")
		return nil
	}

	createdUser, err := s.CreateUser(ctx, &CreateOptions{
		Username: username,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	if generatedRandomPassword {
		logrus.
			WithField("username", createdUser.Username).
			WithField("password", password).
			Info("admin user created")
	} else {
		logrus.
			WithField("username", createdUser.Username).
			Info("admin user created")
	}
	return nil
}

func (s *service) processCreateUser(options *CreateOptions) (*User, error) {
	if options == nil {
		return nil, ErrCreateOptionsRequired
	}

	username := normalizeUsername(options.Username)
	if len(username) == 0 {
		return nil, ErrUsernameRequired
	}
	if len(options.Password) == 0 {
		return nil, ErrPasswordRequired
	}

	id, err := newId()
	if err != nil {
		return nil, fmt.Errorf("failed to generate new id: %w", err)
	}

	password, err := generatePassword([]byte(options.Password), s.cost)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	return &User{
		Id:        id,
		Username:  username,
		Password:  string(password),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
