package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/Benseddik-Fethi/petcare-app/internal/adapter/cache"
	"github.com/Benseddik-Fethi/petcare-app/internal/audit"
	"github.com/Benseddik-Fethi/petcare-app/internal/bootstrap"
	"github.com/Benseddik-Fethi/petcare-app/internal/config"
	httptransport "github.com/Benseddik-Fethi/petcare-app/internal/http"
	"github.com/Benseddik-Fethi/petcare-app/internal/http/handler"
	httpmiddleware "github.com/Benseddik-Fethi/petcare-app/internal/http/middleware"
	apimiddleware "github.com/Benseddik-Fethi/petcare-app/internal/middleware"
	"github.com/Benseddik-Fethi/petcare-app/internal/notify"
	"github.com/Benseddik-Fethi/petcare-app/internal/password"
	"github.com/Benseddik-Fethi/petcare-app/internal/repository"
	"github.com/Benseddik-Fethi/petcare-app/internal/server"
	"github.com/Benseddik-Fethi/petcare-app/internal/service"
	"github.com/Benseddik-Fethi/petcare-app/internal/telemetry"
	"github.com/Benseddik-Fethi/petcare-app/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newUserRepository,
			newSessionRepository,
			newVerificationTokenRepository,
			newResetTokenRepository,
			newAuditLogRepository,
			newCodeStore,
			newHasher,
			newCodec,
			newRecorder,
			newNotifier,
			newAuthService,
			newUserService,
			newRateLimiter,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newSessionRepository(pool *pgxpool.Pool) repository.SessionRepository {
	return repository.NewPostgresSessionRepo(pool)
}

type verificationTokens repository.OneTimeTokenRepository

type resetTokens repository.OneTimeTokenRepository

func newVerificationTokenRepository(pool *pgxpool.Pool) verificationTokens {
	return repository.NewPostgresVerificationTokenRepo(pool)
}

func newResetTokenRepository(pool *pgxpool.Pool) resetTokens {
	return repository.NewPostgresResetTokenRepo(pool)
}

func newAuditLogRepository(pool *pgxpool.Pool) repository.AuditLogRepository {
	return repository.NewPostgresAuditLogRepo(pool)
}

func newCodeStore(client redis.UniversalClient) repository.CodeStore {
	return cacheadapter.NewRedisCodeStore(client)
}

func newHasher(cfg config.Config) (*password.Hasher, error) {
	return password.NewHasher(password.Params{
		Time:    cfg.Argon2Time,
		Memory:  cfg.Argon2Memory,
		Threads: cfg.Argon2Threads,
	})
}

func newCodec(cfg config.Config) *token.Codec {
	return token.NewCodec(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func newRecorder(repo repository.AuditLogRepository, node *snowflake.Node, logger *zap.Logger) *audit.Recorder {
	return audit.NewRecorder(repo, node, logger)
}

func newNotifier(logger *zap.Logger) notify.Notifier {
	return notify.NewLogNotifier(logger)
}

func newAuthService(
	cfg config.Config,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	verifs verificationTokens,
	codes repository.CodeStore,
	hasher *password.Hasher,
	codec *token.Codec,
	recorder *audit.Recorder,
	notifier notify.Notifier,
	logger *zap.Logger,
) *service.AuthService {
	return service.NewAuthService(cfg, users, sessions, verifs, codes, hasher, codec, recorder, notifier, logger)
}

func newUserService(
	cfg config.Config,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	verifs verificationTokens,
	resets resetTokens,
	hasher *password.Hasher,
	codec *token.Codec,
	recorder *audit.Recorder,
	notifier notify.Notifier,
	logger *zap.Logger,
) *service.UserService {
	return service.NewUserService(cfg, users, sessions, verifs, resets, hasher, codec, recorder, notifier, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthMiddleware(codec *token.Codec) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Codec: codec}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			logger.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
