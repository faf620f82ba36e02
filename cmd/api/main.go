package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stexs-auth/internal/config"
	"stexs-auth/internal/db"
	"stexs-auth/internal/email"
	apihttp "stexs-auth/internal/http"
	"stexs-auth/internal/repository"
	"stexs-auth/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := db.ApplySchema(ctx, pool); err != nil {
			logger.Fatal("apply schema", zap.Error(err))
		}
		logger.Info("schema applied")
	}
	txManager := db.NewTxManager(pool)

	userRepo := repository.NewPgUserRepository(pool)
	mfaRepo := repository.NewPgMFARepository(pool)
	refreshRepo := repository.NewPgRefreshTokenRepository(pool)
	oauth2Repo := repository.NewPgOAuth2Repository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	limiters := newRateLimiters(ctx, cfg, logger)

	tokenSvc := service.NewTokenService(service.TokenConfig{
		Keys: service.TokenKeys{
			Access:        []byte(cfg.AccessTokenSecret),
			Refresh:       []byte(cfg.RefreshTokenSecret),
			SignInConfirm: []byte(cfg.SignInConfirmTokenSecret),
		},
		Issuer:           cfg.Issuer,
		Audience:         cfg.Audience,
		AccessTTL:        cfg.AccessTokenTTL(),
		OAuth2AccessTTL:  cfg.OAuth2AccessTokenTTL(),
		SignInConfirmTTL: cfg.SignInConfirmTTL(),
		RefreshTTL:       cfg.RefreshTokenTTL(),
	}, refreshRepo, txManager, logger)
	totp := service.NewTOTPEngine(service.TOTPConfig{
		Issuer:    cfg.ServiceName,
		Algorithm: cfg.TOTPAlgorithm,
		Digits:    cfg.TOTPDigits,
		Period:    cfg.TOTPPeriod,
		Skew:      cfg.TOTPSkew,
	})
	mfaSvc := service.NewMFAService(service.MFAConfig{EmailCodeTTL: cfg.MFAEmailCodeTTL()}, mfaRepo, totp, emailSender, logger)
	userSvc := service.NewUserService(logger, userRepo, mfaRepo, txManager, emailSender, cfg.EmailVerificationCodeTTL())
	signInSvc := service.NewSignInService(userRepo, mfaSvc, tokenSvc, logger)
	oauth2Svc := service.NewOAuth2Service(oauth2Repo, tokenSvc, txManager, cfg.AuthorizationCodeTTL(), logger)

	router, err := apihttp.NewRouter(logger, tokenSvc, limiters,
		apihttp.NewUserHandler(logger, userSvc),
		apihttp.NewSignInHandler(logger, signInSvc, tokenSvc),
		apihttp.NewMFAHandler(logger, mfaSvc, tokenSvc),
		apihttp.NewOAuth2Handler(logger, oauth2Svc),
	)
	if err != nil {
		logger.Fatal("router init", zap.Error(err))
	}

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Printf("warning: zap init: %v", err)
		return zap.NewNop()
	}
	return logger
}

// newRateLimiters usa Redis si esta configurado y responde; si no, memoria local.
func newRateLimiters(ctx context.Context, cfg *config.Config, logger *zap.Logger) apihttp.RateLimiters {
	signIn := time.Duration(cfg.RateLimitSignInDuration) * time.Second
	emailWindow := time.Duration(cfg.RateLimitEmailDuration) * time.Second
	security := time.Duration(cfg.RateLimitSecurityDuration) * time.Second

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory rate limits", zap.Error(err))
		} else {
			return apihttp.RateLimiters{
				SignIn:   service.NewRedisRateLimiter(redisClient, "rl:sign-in:", cfg.RateLimitSignInPoints, signIn),
				Email:    service.NewRedisRateLimiter(redisClient, "rl:email:", cfg.RateLimitEmailPoints, emailWindow),
				Security: service.NewRedisRateLimiter(redisClient, "rl:security:", cfg.RateLimitSecurityPoints, security),
			}
		}
	}
	return apihttp.RateLimiters{
		SignIn:   service.NewMemoryRateLimiter("sign-in:", cfg.RateLimitSignInPoints, signIn),
		Email:    service.NewMemoryRateLimiter("email:", cfg.RateLimitEmailPoints, emailWindow),
		Security: service.NewMemoryRateLimiter("security:", cfg.RateLimitSecurityPoints, security),
	}
}
