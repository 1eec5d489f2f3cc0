package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wg-gateway/pkg/dbx"
	"github.com/UnAfraid/wg-gateway/pkg/metrics"
	"github.com/UnAfraid/wg-gateway/pkg/user"
)

var (
	ErrRateLimited          = errors.New("too many login attempts")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenRequired = errors.New("refresh token is required")
	ErrCredentialsRequired  = errors.New("username and password are required")
	ErrRefreshTokenExists   = errors.New("refresh token already exists")
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	ExpiresAt    time.Time
}

type SessionService interface {
	Login(ctx context.Context, username string, password string, remoteAddr string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Authorize(ctx context.Context, accessToken string) (*user.User, error)
	PurgeExpired(ctx context.Context) (int, error)
}

type sessionService struct {
	transactionScoper      dbx.TransactionScoper
	tokenService           Service
	userService            user.Service
	refreshTokenRepository RefreshTokenRepository
	rateLimiter            *RateLimiter
	refreshTokenDuration   time.Duration
	now                    func() time.Time
}

func NewSessionService(
	transactionScoper dbx.TransactionScoper,
	tokenService Service,
	userService user.Service,
	refreshTokenRepository RefreshTokenRepository,
	rateLimiter *RateLimiter,
	refreshTokenDuration time.Duration,
) SessionService {
	return &sessionService{
		transactionScoper:      transactionScoper,
		tokenService:           tokenService,
		userService:            userService,
		refreshTokenRepository: refreshTokenRepository,
		rateLimiter:            rateLimiter,
		refreshTokenDuration:   refreshTokenDuration,
		now:                    time.Now,
	}
}

func (s *sessionService) Login(ctx context.Context, username string, password string, remoteAddr string) (*TokenPair, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		return nil, ErrCredentialsRequired
	}

	if s.rateLimiter != nil && !s.rateLimiter.Allow(remoteAddr, username) {
		metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
		logrus.
			WithField("username", username).
			WithField("remoteAddr", remoteAddr).
			Warn("login rate limited")
		return nil, ErrRateLimited
	}

	authenticatedUser, err := s.userService.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			metrics.LoginAttempts.WithLabelValues("invalid").Inc()
			logrus.
				WithField("username", username).
				WithField("remoteAddr", remoteAddr).
				Warn("login failed")
		} else {
			metrics.LoginAttempts.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	tokenPair, err := dbx.InTransactionScopeWithResult(ctx, s.transactionScoper, func(ctx context.Context) (*TokenPair, error) {
		return s.issue(ctx, authenticatedUser)
	})
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	logrus.
		WithField("username", authenticatedUser.Username).
		WithField("remoteAddr", remoteAddr).
		Info("login succeeded")
	return tokenPair, nil
}

// Refresh consumes a refresh token and issues a new pair. The presented token
// is revoked in the same transaction so it can be used only once.
func (s *sessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrRefreshTokenRequired
	}

	return dbx.InTransactionScopeWithResult(ctx, s.transactionScoper, func(ctx context.Context) (*TokenPair, error) {
		now := s.now()
		tokenHash := hashRefreshToken(refreshToken)

		stored, err := s.refreshTokenRepository.FindByHash(ctx, tokenHash)
		if err != nil {
			return nil, fmt.Errorf("failed to find refresh token: %w", err)
		}
		if stored == nil || !stored.Active(now) {
			return nil, ErrInvalidRefreshToken
		}

		if _, err := s.refreshTokenRepository.Revoke(ctx, tokenHash, now); err != nil {
			return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
		}

		owner, err := s.userService.FindUser(ctx, &user.FindOneOptions{
			IdOption: &user.IdOption{
				Id: stored.UserId,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if owner == nil {
			return nil, ErrInvalidRefreshToken
		}

		return s.issue(ctx, owner)
	})
}

// Logout revokes the refresh token. Unknown tokens are ignored.
func (s *sessionService) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrRefreshTokenRequired
	}

	revoked, err := s.refreshTokenRepository.Revoke(ctx, hashRefreshToken(refreshToken), s.now())
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if revoked != nil {
		logrus.
			WithField("userId", revoked.UserId).
			Info("refresh token revoked")
	}
	return nil
}

func (s *sessionService) Authorize(ctx context.Context, accessToken string) (*user.User, error) {
	userId, err := s.tokenService.Parse(accessToken)
	if err != nil {
		return nil, err
	}

	authorizedUser, err := s.userService.FindUser(ctx, &user.FindOneOptions{
		IdOption: &user.IdOption{
			Id: userId,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if authorizedUser == nil {
		return nil, fmt.Errorf("%w: unknown user", ErrTokenInvalid)
	}
	return authorizedUser, nil
}

// PurgeExpired deletes refresh tokens past their expiry. Revoked tokens are
// kept until they expire.
func (s *sessionService) PurgeExpired(ctx context.Context) (int, error) {
	deleted, err := s.refreshTokenRepository.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return deleted, nil
}

func (s *sessionService) issue(ctx context.Context, owner *user.User) (*TokenPair, error) {
	accessToken, expiresIn, expiresAt, err := s.tokenService.Sign(owner.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token id: %w", err)
	}

	now := s.now()
	if _, err := s.refreshTokenRepository.Create(ctx, &RefreshToken{
		Id:        id.String(),
		UserId:    owner.Id,
		DeviceId:  owner.Username,
		TokenHash: hashRefreshToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTokenDuration),
	}); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		ExpiresAt:    expiresAt,
	}, nil
}
