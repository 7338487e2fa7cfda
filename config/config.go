package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"checkout-service"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8085"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"50055"`

	Database Database
	Redis    Redis
	Kafka    Kafka
	Paystack Paystack
	Checkout Checkout
	Admin    Admin

	JaegerEndpoint  string        `env:"JAEGER_ENDPOINT" envDefault:"http://localhost:14268/api/traces"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Admin guards catalog writes. PasswordHash is a bcrypt hash; an empty hash
// disables admin login.
type Admin struct {
	Username     string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	PasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	JWTSecret    string        `env:"ADMIN_JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	TokenTTL     time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"12h"`
}

type Database struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"catalogdb"`
}

// DSN returns the lib/pq connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

type Redis struct {
	Host     string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string        `env:"REDIS_PORT" envDefault:"6379"`
	Password string        `env:"REDIS_PASSWORD"`
	TTL      time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5m"`
}

func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type Kafka struct {
	Brokers       []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	EventsTopic   string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"checkout_events"`
	PaymentsTopic string   `env:"KAFKA_PAYMENTS_TOPIC" envDefault:"payment_events"`
}

type Paystack struct {
	BaseURL            string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	PublicKey          string        `env:"PAYSTACK_PUBLIC_KEY" envDefault:"pk_test_YOUR_PUBLIC_KEY_HERE"`
	SecretKey          string        `env:"PAYSTACK_SECRET_KEY"`
	Currency           string        `env:"PAYSTACK_CURRENCY" envDefault:"NGN"`
	Timeout            time.Duration `env:"PAYSTACK_TIMEOUT" envDefault:"10s"`
	BreakerMaxFailures int           `env:"PAYSTACK_BREAKER_MAX_FAILURES" envDefault:"3"`
	BreakerReset       time.Duration `env:"PAYSTACK_BREAKER_RESET" envDefault:"30s"`
	PendingTTL         time.Duration `env:"PAYSTACK_PENDING_TTL" envDefault:"1h"`
}

// Checkout holds the timings of the user-facing flows.
type Checkout struct {
	ReferencePrefix     string        `env:"CHECKOUT_REFERENCE_PREFIX" envDefault:"WCV"`
	NotificationDisplay time.Duration `env:"NOTIFICATION_DISPLAY" envDefault:"4s"`
	NotificationFade    time.Duration `env:"NOTIFICATION_FADE" envDefault:"500ms"`
	ContactSendDelay    time.Duration `env:"CONTACT_SEND_DELAY" envDefault:"1500ms"`
	SessionIdleTTL      time.Duration `env:"CHECKOUT_SESSION_IDLE_TTL" envDefault:"30m"`
	SweepInterval       time.Duration `env:"CHECKOUT_SWEEP_INTERVAL" envDefault:"1m"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
