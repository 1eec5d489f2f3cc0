package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/UnAfraid/wg-gateway/pkg/api"
	"github.com/UnAfraid/wg-gateway/pkg/auth"
	"github.com/UnAfraid/wg-gateway/pkg/command"
	"github.com/UnAfraid/wg-gateway/pkg/config"
	"github.com/UnAfraid/wg-gateway/pkg/datastore"
	"github.com/UnAfraid/wg-gateway/pkg/datastore/bbolt"
	"github.com/UnAfraid/wg-gateway/pkg/dbx"
	"github.com/UnAfraid/wg-gateway/pkg/lock"
	"github.com/UnAfraid/wg-gateway/pkg/metrics"
	"github.com/UnAfraid/wg-gateway/pkg/pool"
	"github.com/UnAfraid/wg-gateway/pkg/provision"
	"github.com/UnAfraid/wg-gateway/pkg/qr"
	"github.com/UnAfraid/wg-gateway/pkg/status"
	"github.com/UnAfraid/wg-gateway/pkg/user"
	"github.com/UnAfraid/wg-gateway/pkg/wgconf"
	"github.com/UnAfraid/wg-gateway/pkg/wireguard"
	"github.com/UnAfraid/wg-gateway/pkg/wireguard/keygen"
)

const (
	appName                   = "wg-gateway"
	refreshTokenPurgeInterval = time.Hour
	shutdownTimeout           = 30 * time.Second
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339,
	})

	conf, err := config.Load(appName)
	if err != nil {
		logrus.
			WithError(err).
			Fatal("failed to initialize config")
		return
	}

	logLevel, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		logrus.
			WithError(err).
			Fatal("failed to parse log level")
		return
	}
	logrus.SetLevel(logLevel)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)

	if _, err := maxprocs.Set(maxprocs.Logger(logrus.Printf)); err != nil {
		logrus.
			WithError(err).
			Error("failed to set maxprocs")
		return
	}

	debugServer := &http.Server{
		Addr:              conf.DebugServer.Address(),
		Handler:           newDebugRouter(conf.DebugServer),
		ReadHeaderTimeout: conf.HttpServer.ReadHeaderTimeout,
	}

	if conf.DebugServer.Enabled {
		go func() {
			logrus.WithField("address", conf.DebugServer.Address()).Info("Starting serving debug server")
			if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.
					WithError(err).
					Fatal("Failed to serve debug")
				return
			}
		}()
	}

	logrus.Info("initializing database..")
	db, err := datastore.NewBBoltDB(conf.BoltDB.Path, conf.BoltDB.Timeout)
	if err != nil {
		logrus.
			WithError(err).
			Fatal("failed initialize datastore")
		return
	}
	defer func() {
		if err := db.Close(); err != nil {
			logrus.
				WithError(err).
				Error("failed to close datastore")
		}
	}()

	transactionScoper := dbx.NewBBoltTransactionScoper(db)

	userRepository := bbolt.NewUserRepository(db)
	userService, err := user.NewService(userRepository, conf.Admin.Username, conf.Admin.Password)
	if err != nil {
		logrus.
			WithError(err).
			Fatal("failed to initialize user service")
		return
	}

	jwtSecret := []byte(conf.JwtSecret)
	authService := auth.NewService(jwt.SigningMethodHS256, jwtSecret, jwtSecret, conf.JwtIssuer, conf.JwtAudience, conf.JwtDuration)
	refreshTokenRepository := bbolt.NewRefreshTokenRepository(db)
	rateLimiter := auth.NewRateLimiter(conf.RateLimit.Window, conf.RateLimit.MaxPerIp, conf.RateLimit.MaxPerUser, time.Now)
	sessionService := auth.NewSessionService(
		transactionScoper,
		authService,
		userService,
		refreshTokenRepository,
		rateLimiter,
		conf.RefreshTokenDuration,
	)

	wg := conf.WireGuard
	var runnerOptions []command.Option
	if wg.UseSudo {
		runnerOptions = append(runnerOptions, command.WithSudo(wg.SudoPath))
	}
	runner := command.NewRunner(runnerOptions...)

	controller := wireguard.NewController(runner, wg.WgPath)

	keyGenerator, err := keygen.New(wg.KeyGenerator, runner, wg.WgPath)
	if err != nil {
		logrus.
			WithError(err).
			Fatal("failed to initialize key generator")
		return
	}

	qrRenderer, err := qr.New(wg.QrRenderer, runner, wg.QrencodePath)
	if err != nil {
		logrus.
			WithError(err).
			Fatal("failed to initialize qr renderer")
		return
	}

	addressPool, err := pool.Resolve(wg.AddressPoolCidr, wg.PoolFallback)
	if err != nil {
		logrus.
			WithError(err).
			Fatal("failed to resolve address pool")
		return
	}

	configManager := wgconf.NewManager(controller, wg.ConfigDir, wg.ConfigPath)

	provisionService := provision.NewService(
		provision.Options{
			Iface:            wg.Interface,
			EndpointHost:     wg.EndpointHost,
			EndpointPort:     int(wg.EndpointPort),
			ClientAllowedIPs: wg.ClientAllowedIps,
			PersistPeers:     wg.PersistPeers,
			LockTimeout:      wg.LockTimeout,
		},
		controller,
		keyGenerator,
		qrRenderer,
		addressPool,
		lock.New(wg.ResolvedLockPath()),
		configManager,
	)
	statusService := status.NewService(wg.Interface, wg.PersistPeers, controller, configManager)

	logrus.
		WithField("iface", wg.Interface).
		WithField("pool", addressPool.String()).
		WithField("persistPeers", wg.PersistPeers).
		WithField("lockPath", wg.ResolvedLockPath()).
		Info("wireguard gateway configured")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go purgeRefreshTokens(ctx, sessionService)

	router := api.NewRouter(
		conf,
		sessionService,
		provisionService,
		statusService,
	)

	httpServer := http.Server{
		Addr:              conf.HttpServer.Address(),
		Handler:           router,
		ReadHeaderTimeout: conf.HttpServer.ReadHeaderTimeout,
	}

	go func() {
		logrus.WithField("address", conf.HttpServer.Address()).Info("Starting serving http server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.
				WithError(err).
				Fatal("failed to listen and serve http server")
		}
	}()

	<-shutdownChan
	logrus.Info("Shutting down")
	cancel()

	logrus.Info("Shutting down http server")
	httpServerShutdownTimeoutCtx, httpCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer httpCancel()
	if err := httpServer.Shutdown(httpServerShutdownTimeoutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.
			WithError(err).
			Error("failed to shutdown http server")
	}

	if conf.DebugServer.Enabled {
		logrus.Info("Shutting down debug http server")
		debugHttpServerShutdownTimeoutCtx, debugCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer debugCancel()
		if err := debugServer.Shutdown(debugHttpServerShutdownTimeoutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.
				WithError(err).
				Error("failed to shutdown debug server")
		}
	}
}

func newDebugRouter(conf *config.DebugServer) http.Handler {
	router := chi.NewRouter()
	router.Mount("/debug", middleware.Profiler())
	if conf.MetricsEnabled {
		router.Handle("/metrics", metrics.Handler())
	}
	return router
}

func purgeRefreshTokens(ctx context.Context, sessionService auth.SessionService) {
	ticker := time.NewTicker(refreshTokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := sessionService.PurgeExpired(ctx)
			if err != nil {
				logrus.
					WithError(err).
					Error("failed to purge expired refresh tokens")
				continue
			}
			if deleted > 0 {
				logrus.
					WithField("deleted", deleted).
					Info("purged expired refresh tokens")
			}
		}
	}
}
