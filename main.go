package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-rental/internal/auth"
	"ms-rental/internal/config"
	"ms-rental/internal/contract"
	"ms-rental/internal/database/migrations"
	"ms-rental/internal/fee"
	"ms-rental/internal/identity"
	"ms-rental/internal/kafka"
	"ms-rental/internal/logger"
	"ms-rental/internal/order"
	"ms-rental/internal/order/db"
	"ms-rental/internal/order/order_api"
	rediswrap "ms-rental/internal/order/redis"
	"ms-rental/internal/payment"
	"ms-rental/internal/payment/momo"
	stripegw "ms-rental/internal/payment/stripe"
	"ms-rental/internal/payment/vnpay"
	"ms-rental/internal/sse"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d)", attempt))
		if err := sqldb.Ping(); err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
			return err
		}
		return nil
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5))
	if err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", attempt, err)
	}

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func runMigrations(cfg config.DatabaseConfig, log *logger.Logger) error {
	migrationDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	runner := migrations.NewRunner(migrationDB, migrations.MigrateOptions{
		MigrationsDir: cfg.MigrationsDir,
		SeedData:      cfg.SeedData,
	}, log)
	defer runner.Close()
	return runner.RunMigrations()
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection error: %w", err)
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client, nil
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	if cfg.Mode == "oidc" {
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	}
	return auth.NewHS256Verifier(cfg.JWTSecret, cfg.JWTIssuer), nil
}

func newGateways(cfg config.PaymentConfig, log *logger.Logger) []payment.Gateway {
	var gateways []payment.Gateway
	if cfg.VNPay.Enabled {
		gateways = append(gateways, vnpay.New(vnpay.Config{
			TmnCode:     cfg.VNPay.TmnCode,
			HashSecret:  cfg.VNPay.HashSecret,
			PayURL:      cfg.VNPay.PayURL,
			ReturnURL:   cfg.VNPay.ReturnURL,
			ExpireAfter: cfg.VNPay.ExpireAfter,
		}))
	}
	if cfg.MoMo.Enabled {
		gateways = append(gateways, momo.New(momo.Config{
			PartnerCode: cfg.MoMo.PartnerCode,
			AccessKey:   cfg.MoMo.AccessKey,
			SecretKey:   cfg.MoMo.SecretKey,
			Endpoint:    cfg.MoMo.Endpoint,
			RedirectURL: cfg.MoMo.RedirectURL,
			IPNURL:      cfg.MoMo.IPNURL,
			Timeout:     cfg.HTTPTimeout,
		}))
	}
	if cfg.Stripe.Enabled {
		gateways = append(gateways, stripegw.New(stripegw.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Currency:      cfg.Stripe.Currency,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
			Timeout:       cfg.HTTPTimeout,
		}))
	}
	for _, gw := range gateways {
		log.Info("PAYMENT", fmt.Sprintf("gateway %s enabled", gw.Name()))
	}
	return gateways
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Info("APP", "Starting Rental Service initialization")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := runMigrations(cfg.Database, log); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	}
	bunDB, err := connectPostgres(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()
	store := &db.DB{Bun: bunDB}

	redisClient, err := connectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("REDIS", err.Error())
	}
	defer redisClient.Close()

	var lock order.ScheduleLock
	if cfg.Lock.Enabled {
		lock = rediswrap.NewVehicleLock(redisClient, log, cfg.Lock.TTL, cfg.Lock.MaxWait)
	}

	var tokens identity.Tokens
	identityHTTP := &http.Client{Timeout: cfg.Identity.Timeout}
	if cfg.Identity.KeycloakURL != "" {
		tokens = &identity.TokenSource{
			KeycloakURL:  cfg.Identity.KeycloakURL,
			Realm:        cfg.Identity.KeycloakRealm,
			ClientID:     cfg.Identity.ClientID,
			ClientSecret: cfg.Identity.ClientSecret,
			HTTP:         identityHTTP,
			Cache:        identity.NewRedisTokenCache(redisClient),
			Logger:       log,
		}
	}
	identityClient := identity.NewClient(cfg.Identity.BaseURL, identityHTTP, tokens, log)

	// --- Notification sinks ---
	stations := sse.NewStationBroker()
	sinks := order.Notifiers{}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}, cfg.Kafka.Partitions, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer producer.Close()
		sinks = append(sinks, producer)

		if cfg.Kafka.RelayToSSE {
			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, log)
			defer consumer.Close()
			go func() {
				if err := consumer.Run(ctx, stations.Publish); err != nil {
					log.Error("KAFKA", fmt.Sprintf("order event relay stopped: %v", err))
				}
			}()
		}
	}
	if !cfg.Kafka.Enabled || !cfg.Kafka.RelayToSSE {
		sinks = append(sinks, stations)
	}

	orderService := order.NewOrderService(store, lock, identityClient, sinks, contract.NewGenerator(cfg.Contract.Secret), log)
	orderService.NotifyTimeout = cfg.Payment.NotifyTimeout

	paymentService := payment.NewService(store, sinks, log, newGateways(cfg.Payment, log)...)
	paymentService.NotifyTimeout = cfg.Payment.NotifyTimeout

	feeService := fee.NewService(store, sinks, log)
	feeService.NotifyTimeout = cfg.Payment.NotifyTimeout

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			log.LogAPI(req.Method, req.URL.Path, ww.Status(), time.Since(start))
		})
	})
	order_api.NewHandler(orderService, paymentService, feeService, stations, log).Routes(r, auth.Middleware(verifier, log))

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		// WriteTimeout stays unset: SSE streams are long-lived
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Rental Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Rental Service shutdown complete")
	}
}
