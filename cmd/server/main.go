package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"beehive/internal/analysis"
	"beehive/internal/api"
	"beehive/internal/auth"
	"beehive/internal/config"
	"beehive/internal/database"
	"beehive/internal/events"
	"beehive/internal/logging"
	"beehive/internal/media"
	"beehive/internal/middleware"
	"beehive/internal/repository/postgres"
	"beehive/internal/service"
	"beehive/internal/storage"
	"beehive/internal/storage/local"
	"beehive/internal/storage/s3"

	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// 日志尚未初始化
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}

	logs := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logs.Named("server")
	log.Info().Msg("配置加载完成，开始启动服务")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg, logs.Named("database"))
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()

	store, err := newStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("init storage")
	}

	keys := auth.NewKeySetCache(auth.KeySetOptions{
		RefreshInterval: cfg.Auth.KeyRefreshInterval,
		Endpoint:        func(string) string { return cfg.Auth.JWKSEndpoint() },
		Logger:          logs.Named("jwks"),
	})
	defer keys.Close()
	verifier := auth.NewVerifier(cfg.Auth.Issuer, keys, logs.Named("auth"))

	var rateStore middleware.CounterStore
	if cfg.RedisURL != "" {
		client, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer client.Close()
		rateStore = middleware.NewRedisStore(client, "beehive:")
		log.Info().Msg("rate limiting backed by redis")
	}

	publisher := newPublisher(cfg, logs)
	defer publisher.Close()

	var analyzer analysis.Analyzer
	if cfg.AI.AnalysisEnabled() {
		analyzer = analysis.NewOpenAIClient(analysis.Config{
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		}, logs.Named("analysis"))
	} else {
		log.Warn().Msg("AI_API_KEY not set, media analysis disabled")
	}

	sniffer := media.NewSniffer(media.NewMimetypeDetector(), logs.Named("media"))

	uploadSvc := service.NewUploadService(service.UploadDeps{
		Uploads:       postgres.NewUploadRepository(db),
		Notifications: postgres.NewNotificationRepository(db),
		Store:         store,
		Sniffer:       sniffer,
		Validator:     media.NewValidator(),
		Audio:         media.NewAudioIntake(sniffer),
		Thumbnailer:   media.NewPDFThumbnailer(),
		Events:        publisher,
		Logger:        logs.Named("uploads"),
	})
	notificationSvc := service.NewNotificationService(postgres.NewNotificationRepository(db), logs.Named("notifications"))
	chatSvc := service.NewChatService(postgres.NewMessageRepository(db), logs.Named("chat"))

	var static http.Handler
	if cfg.StorageDriver == "local" {
		static = api.NewStaticHandler(http.Dir(cfg.StorageDir))
	}

	httpLog := logs.Named("http")
	router := api.NewRouter(cfg, api.RouterDeps{
		Static:    static,
		Verifier:  verifier,
		RateStore: rateStore,
		Logger:    httpLog,
		Uploads:   api.NewUploadHandler(uploadSvc, cfg.MaxRequestBytes, httpLog),
		Analysis:  api.NewAnalysisHandler(analyzer, sniffer, cfg.MaxRequestBytes, httpLog),
		Chat:      api.NewChatHandler(chatSvc, httpLog),
		Admin:     api.NewAdminHandler(notificationSvc, uploadSvc, httpLog),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
		Handler:           router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("服务开始监听")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("监听失败")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("优雅关闭失败")
	}

	log.Info().Msg("服务已停止")
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.StorageDriver == "s3" {
		return s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
			PathStyle: cfg.S3.PathStyle,
		})
	}
	return local.New(cfg.StorageDir, strings.TrimSuffix(api.StaticPrefix, "/")), nil
}

// newPublisher 连接失败时退回 NopPublisher，上传事件只是附加能力。
func newPublisher(cfg *config.Config, logs *logging.Factory) events.Publisher {
	log := logs.Named("events")
	if cfg.AMQP.URL == "" {
		return events.NopPublisher{}
	}
	p, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	if err != nil {
		log.Warn().Err(err).Msg("amqp unavailable, upload events disabled")
		return events.NopPublisher{}
	}
	return p
}
