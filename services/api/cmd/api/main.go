package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"wildwatch/internal/ratelimit"
	"wildwatch/internal/usertoken"
	"wildwatch/internal/util"
	"wildwatch/pkg/storage"
	"wildwatch/pkg/store"
	"wildwatch/services/api/internal/analysis"
	"wildwatch/services/api/internal/app"
	"wildwatch/services/api/internal/config"
	"wildwatch/services/api/internal/ingress"
	"wildwatch/services/api/internal/publish"
	"wildwatch/services/api/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer dataStore.Close()

	tokens, err := newTokenService(cfg)
	if err != nil {
		log.Fatalf("failed to init token service: %v", err)
	}

	receiver, err := ingress.New(ingress.Config{StagingDir: cfg.StagingDir, MaxBytes: cfg.MaxUploadBytes})
	if err != nil {
		log.Fatalf("failed to init upload receiver: %v", err)
	}

	analysisTimeout, err := config.ParseDuration("analysisTimeout", cfg.AnalysisTimeout, 30*time.Second)
	if err != nil {
		log.Fatalf("failed to parse analysis timeout: %v", err)
	}
	analyzer, err := analysis.NewClient(analysis.Config{
		BaseURL:     cfg.AnalysisURL,
		ArtifactDir: cfg.ArtifactDir,
		StagingDir:  receiver.Dir(),
		Timeout:     analysisTimeout,
	})
	if err != nil {
		log.Fatalf("failed to init analysis client: %v", err)
	}

	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init publisher: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:     dataStore,
		Tokens:    tokens,
		Analyzer:  analyzer,
		Publisher: publisher,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	if cfg.SeedUsers {
		created, err := appCore.SeedUsers(cfg.SeedAdminPassword, cfg.SeedUserPassword)
		if err != nil {
			log.Fatalf("failed to seed users: %v", err)
		}
		logger.Info("seed users", "created", created)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	serverCfg := server.Config{
		App:                        appCore,
		Receiver:                   receiver,
		RateLimitPrefix:            ratelimit.DefaultPrefix,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		UpdateRateLimitPerMinute:   cfg.UpdateRateLimitPerMinute,
		TrustedProxies:             trusted,
		CORSOrigins:                cfg.CORSOrigins,
	}
	if cfg.RedisAddr != "" {
		redisClient, err := ratelimit.NewClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("failed to init redis: %v", err)
		}
		defer redisClient.Close()
		serverCfg.Redis = redisClient
	} else {
		logger.Warn("redisAddr not set; rate limiting disabled")
	}
	httpServer, err := server.New(serverCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Uploads wait on analysis and both publish legs.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newTokenService(cfg config.FileConfig) (*usertoken.Service, error) {
	ttl, err := config.ParseDuration("tokenTTL", cfg.TokenTTL, 0)
	if err != nil {
		return nil, err
	}
	leeway, err := config.ParseNonNegativeDuration("jwtLeeway", cfg.JWTLeeway, usertoken.DefaultLeeway)
	if err != nil {
		return nil, err
	}
	verifyKeys, err := config.ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys)
	if err != nil {
		return nil, err
	}
	return usertoken.NewFromPEM(cfg.JWTPrivateKeyPath, cfg.JWTKeyID, verifyKeys, usertoken.Config{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
		TTL:      ttl,
	})
}

func newPublisher(ctx context.Context, cfg config.FileConfig) (*publish.Publisher, error) {
	images, err := publish.NewImgurClient(cfg.ImgurUploadURL, cfg.ImgurClientID, nil)
	if err != nil {
		return nil, err
	}
	var documents publish.DocumentHost
	switch cfg.DocumentHost {
	case "drive":
		svc, err := publish.NewDriveService(ctx, cfg.DriveCredentialsFile)
		if err != nil {
			return nil, err
		}
		if documents, err = publish.NewDriveHost(svc, cfg.DriveFolderID); err != nil {
			return nil, err
		}
	case "s3":
		linkTTL, err := config.ParseDuration("documentLinkTTL", cfg.DocumentLinkTTL, 0)
		if err != nil {
			return nil, err
		}
		bucket, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			UseSSL:       cfg.S3UseSSL,
			CreateBucket: true,
		})
		if err != nil {
			return nil, err
		}
		if documents, err = publish.NewBucketHost(bucket, cfg.S3PublicBaseURL, linkTTL); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown document host %q", cfg.DocumentHost)
	}
	publishTimeout, err := config.ParseDuration("publishTimeout", cfg.PublishTimeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	return publish.New(images, documents, publishTimeout)
}
