// Package main запускает HTTP-сервер витрины.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storefront/internal/auth"
	"github.com/mmeshcher/storefront/internal/config"
	"github.com/mmeshcher/storefront/internal/handler"
	"github.com/mmeshcher/storefront/internal/mailer"
	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/otp"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/service"
	"github.com/mmeshcher/storefront/internal/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		sugar.Warnw("failed to load .env file", "error", err.Error())
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, email := range cfg.AdminEmails {
		ok, err := repo.SetRoleByEmail(ctx, email, model.RoleAdmin)
		if err != nil {
			sugar.Fatalw("failed to grant admin role", "email", email, "error", err.Error())
		}
		if !ok {
			sugar.Warnw("admin email is not registered yet", "email", email)
		}
	}

	store, closeStore, err := newCodeStore(ctx, cfg)
	if err != nil {
		sugar.Fatalw("one-time code storage initialization error", "error", err.Error())
	}
	defer closeStore()

	var sender otp.CodeSender = mailer.NewLogSender(logger)
	if cfg.EmailServiceURL != "" {
		sender = mailer.NewClient(cfg.EmailServiceURL, 3, logger)
	}
	codes := otp.NewIssuer(store, sender, logger)

	secret := cfg.SessionSecret
	if secret == "" {
		secret = randomSecret()
		sugar.Warn("session secret is not configured, sessions will not survive restart")
	}
	tokens, err := session.NewIssuer(secret)
	if err != nil {
		sugar.Fatalw("session initialization error", "error", err.Error())
	}

	credentials := auth.NewCredentialStore(repo, auth.NewBcryptHasher(0))
	methods := map[auth.Method]auth.Authenticator{
		auth.MethodPassword:    auth.NewPasswordAuthenticator(credentials),
		auth.MethodOneTimeCode: auth.NewOneTimeCodeAuthenticator(credentials, codes),
	}
	if cfg.GoogleClientID != "" {
		methods[auth.MethodFederated] = auth.NewFederatedAuthenticator(credentials, auth.NewGoogleVerifier(cfg.GoogleClientID))
	} else {
		sugar.Info("google client id is not configured, federated login disabled")
	}

	svc := service.NewService(credentials, auth.NewDispatcher(methods), codes, tokens, repo)

	authMiddleware := middleware.NewAuthMiddleware(tokens)
	h := handler.NewHandler(svc, logger, authMiddleware, handler.WithHealthCheck(repo.Ping))

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting storefront server", "addr", cfg.RunAddress, "otp_backend", cfg.OTPBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newCodeStore(ctx context.Context, cfg *config.Config) (otp.Store, func(), error) {
	if cfg.OTPBackend != config.OTPBackendRedis {
		return otp.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return otp.NewRedisStore(client), func() { _ = client.Close() }, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
