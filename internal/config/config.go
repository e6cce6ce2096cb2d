package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Identity IdentityConfig
	Payment  PaymentConfig
	Lock     LockConfig
	Contract ContractConfig
	LogDir   string
	LogLevel string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host          string
	Port          string
	Username      string
	Password      string
	Database      string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
	AutoMigrate   bool
	SeedData      bool
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	Topic      string
	Partitions int
	// RelayToSSE feeds the station SSE broker from the topic instead of in process,
	// so staff connected to any instance see every event.
	RelayToSSE bool
	GroupID    string
}

type AuthConfig struct {
	// Mode is "hs256" or "oidc".
	Mode       string
	JWTSecret  string
	JWTIssuer  string
	OIDCIssuer string
}

type IdentityConfig struct {
	BaseURL       string
	KeycloakURL   string
	KeycloakRealm string
	ClientID      string
	ClientSecret  string
	Timeout       time.Duration
}

type PaymentConfig struct {
	HTTPTimeout   time.Duration
	NotifyTimeout time.Duration
	VNPay         VNPayConfig
	MoMo          MoMoConfig
	Stripe        StripeConfig
}

type VNPayConfig struct {
	Enabled     bool
	TmnCode     string
	HashSecret  string
	PayURL      string
	ReturnURL   string
	ExpireAfter time.Duration
}

type MoMoConfig struct {
	Enabled     bool
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNURL      string
}

type StripeConfig struct {
	Enabled       bool
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type LockConfig struct {
	Enabled bool
	TTL     time.Duration
	MaxWait time.Duration
}

type ContractConfig struct {
	Secret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			Username:      getEnv("DB_USERNAME", "rental_user"),
			Password:      getEnv("DB_PASSWORD", ""),
			Database:      getEnv("DB_NAME", "rental"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("DB_AUTO_MIGRATE", true),
			SeedData:      getEnvBool("DB_SEED_DATA", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:    getEnvBool("KAFKA_ENABLED", true),
			Brokers:    getEnvList("KAFKA_BROKERS", "localhost:9092"),
			Topic:      getEnv("KAFKA_TOPIC_ORDER_EVENTS", "rental.order-events"),
			Partitions: getEnvInt("KAFKA_TOPIC_PARTITIONS", 3),
			RelayToSSE: getEnvBool("KAFKA_RELAY_SSE", false),
			GroupID:    getEnv("KAFKA_GROUP_ID", "ms-rental-sse-"+hostname()),
		},
		Auth: AuthConfig{
			Mode:       strings.ToLower(getEnv("AUTH_MODE", "hs256")),
			JWTSecret:  getEnv("JWT_SECRET", ""),
			JWTIssuer:  getEnv("JWT_ISSUER", "ms-rental"),
			OIDCIssuer: getEnv("OIDC_ISSUER_URL", ""),
		},
		Identity: IdentityConfig{
			BaseURL:       getEnv("IDENTITY_SERVICE_URL", "http://localhost:8081"),
			KeycloakURL:   getEnv("KEYCLOAK_URL", ""),
			KeycloakRealm: getEnv("KEYCLOAK_REALM", ""),
			ClientID:      getEnv("RENTAL_CLIENT_ID", ""),
			ClientSecret:  getEnv("RENTAL_CLIENT_SECRET", ""),
			Timeout:       getEnvDuration("IDENTITY_TIMEOUT", 5*time.Second),
		},
		Payment: PaymentConfig{
			HTTPTimeout:   getEnvDuration("PAYMENT_HTTP_TIMEOUT", 10*time.Second),
			NotifyTimeout: getEnvDuration("NOTIFY_TIMEOUT", 5*time.Second),
			VNPay: VNPayConfig{
				Enabled:     getEnvBool("VNPAY_ENABLED", false),
				TmnCode:     getEnv("VNPAY_TMN_CODE", ""),
				HashSecret:  getEnv("VNPAY_HASH_SECRET", ""),
				PayURL:      getEnv("VNPAY_PAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
				ReturnURL:   getEnv("VNPAY_RETURN_URL", ""),
				ExpireAfter: getEnvDuration("VNPAY_EXPIRE_AFTER", 15*time.Minute),
			},
			MoMo: MoMoConfig{
				Enabled:     getEnvBool("MOMO_ENABLED", false),
				PartnerCode: getEnv("MOMO_PARTNER_CODE", ""),
				AccessKey:   getEnv("MOMO_ACCESS_KEY", ""),
				SecretKey:   getEnv("MOMO_SECRET_KEY", ""),
				Endpoint:    getEnv("MOMO_ENDPOINT", "https://test-payment.momo.vn/v2/gateway/api/create"),
				RedirectURL: getEnv("MOMO_REDIRECT_URL", ""),
				IPNURL:      getEnv("MOMO_IPN_URL", ""),
			},
			Stripe: StripeConfig{
				Enabled:       getEnvBool("STRIPE_ENABLED", false),
				SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
				WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
				Currency:      getEnv("STRIPE_CURRENCY", "vnd"),
				SuccessURL:    getEnv("STRIPE_SUCCESS_URL", ""),
				CancelURL:     getEnv("STRIPE_CANCEL_URL", ""),
			},
		},
		Lock: LockConfig{
			Enabled: getEnvBool("VEHICLE_LOCK_ENABLED", true),
			TTL:     getEnvDuration("VEHICLE_LOCK_TTL", 30*time.Second),
			MaxWait: getEnvDuration("VEHICLE_LOCK_MAX_WAIT", 3*time.Second),
		},
		Contract: ContractConfig{
			Secret: getEnv("CONTRACT_SECRET", ""),
		},
		LogDir:   getEnv("LOG_DIR", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every missing secret for the enabled features at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(value, name string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	require(c.Database.Password, "DB_PASSWORD")
	require(c.Contract.Secret, "CONTRACT_SECRET")
	switch c.Auth.Mode {
	case "hs256":
		require(c.Auth.JWTSecret, "JWT_SECRET")
	case "oidc":
		require(c.Auth.OIDCIssuer, "OIDC_ISSUER_URL")
	default:
		errs = append(errs, fmt.Errorf("AUTH_MODE must be hs256 or oidc, got %q", c.Auth.Mode))
	}
	if c.Identity.KeycloakURL != "" {
		require(c.Identity.KeycloakRealm, "KEYCLOAK_REALM")
		require(c.Identity.ClientID, "RENTAL_CLIENT_ID")
		require(c.Identity.ClientSecret, "RENTAL_CLIENT_SECRET")
	}
	if c.Payment.VNPay.Enabled {
		require(c.Payment.VNPay.TmnCode, "VNPAY_TMN_CODE")
		require(c.Payment.VNPay.HashSecret, "VNPAY_HASH_SECRET")
	}
	if c.Payment.MoMo.Enabled {
		require(c.Payment.MoMo.PartnerCode, "MOMO_PARTNER_CODE")
		require(c.Payment.MoMo.AccessKey, "MOMO_ACCESS_KEY")
		require(c.Payment.MoMo.SecretKey, "MOMO_SECRET_KEY")
	}
	if c.Payment.Stripe.Enabled {
		require(c.Payment.Stripe.SecretKey, "STRIPE_SECRET_KEY")
		require(c.Payment.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "local"
	}
	return name
}
