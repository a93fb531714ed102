package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/health"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/media"
	"github.com/fjod/storefront/internal/poller"
	"github.com/fjod/storefront/internal/repository"
	s "github.com/fjod/storefront/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up MongoDB connection
	db, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		if err := repository.Disconnect(context.Background(), db); err != nil {
			log.Error("failed to disconnect from MongoDB", "error", err)
		}
	}()
	log.Info("connected to MongoDB", "database", cfg.Mongo.Database)

	if err := repository.RunMigrations(cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.MigrationsPath); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("migrations completed successfully")

	redisClient, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connect to Redis: %w", err)
	}
	defer redisClient.Close()
	log.Info("redis ping succeeded", "addr", cfg.Redis.Addr)

	uploader, uploadDir, err := newUploader(cfg.Media)
	if err != nil {
		return err
	}

	carts := repository.NewMongoCartRepository(db)
	products := repository.NewMongoProductRepository(db)
	reviews := repository.NewMongoReviewRepository(db)
	users := repository.NewMongoUserRepository(db)
	tokens := auth.NewTokenIssuer(cfg.Auth)

	cartService := s.NewCartService(carts, products, cache.NewRedisCache(redisClient), log)
	productService := s.NewProductService(products, reviews, users, cartService, uploader, log)
	reviewService := s.NewReviewService(reviews, products, users)
	userService := s.NewUserService(users, tokens, uploader, log)

	checkDeps := func(ctx context.Context) error {
		if err := db.Client().Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}

	router := h.NewRouter(h.Deps{
		Carts:    cartService,
		Products: productService,
		Reviews:  reviewService,
		Users:    userService,
		Tokens:   tokens,
		Log:      log,
		Cookies: h.CookieConfig{
			Secure:        cfg.Auth.CookieSecure,
			AccessMaxAge:  cfg.Auth.AccessTokenExpiry,
			RefreshMaxAge: cfg.Auth.RefreshTokenExpiry,
		},
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		MaxRequestBodySize: cfg.HTTP.MaxRequestBodySize,
		UploadDir:          uploadDir,
		HealthCheck:        checkDeps,
	})

	if len(cfg.Kafka.Brokers) > 0 {
		p := poller.NewPoller(cartService, log, cfg.Kafka.CheckoutTopic, cfg.Kafka.Brokers...)
		defer p.Close()
		go p.Run(ctx)
		log.Info("checkout poller started", "topic", cfg.Kafka.CheckoutTopic)
	}

	if cfg.HTTP.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.HTTP.GRPCHealthPort)
		if err != nil {
			return fmt.Errorf("listen on health port: %w", err)
		}
		hs := health.NewServer(checkDeps, 10*time.Second, log)
		defer hs.Stop()
		go func() {
			log.Info("gRPC health server listening", "port", cfg.HTTP.GRPCHealthPort)
			if err := hs.Serve(ctx, lis); err != nil {
				log.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:        ":" + cfg.HTTP.Port,
		Handler:     router,
		ReadTimeout: cfg.HTTP.RequestTimeout,
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("storefront starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

// newUploader talks to the media host when one is configured and falls back
// to local disk otherwise. The returned dir is non-empty only for disk storage.
func newUploader(cfg config.MediaConfig) (media.Uploader, string, error) {
	if cfg.UploadURL != "" {
		client := &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
		return media.NewHTTPUploader(cfg.UploadURL, cfg.APIKey, client), "", nil
	}

	disk, err := media.NewDiskUploader(cfg.LocalDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("prepare upload dir: %w", err)
	}
	return disk, disk.Dir(), nil
}
