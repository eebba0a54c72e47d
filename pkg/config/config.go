package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "ROOMGUARD"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "ROOMGUARD_APP_ENV"
	EnvAppPort    = "ROOMGUARD_APP_PORT"
	EnvServerName = "ROOMGUARD_SERVER_NAME"
	EnvDBDSN      = "ROOMGUARD_DB_DSN"
	EnvDBHost     = "ROOMGUARD_DB_HOST"
	EnvDBUser     = "ROOMGUARD_DB_USER"
	EnvDBName     = "ROOMGUARD_DB_NAME"
	EnvRedisURL   = "ROOMGUARD_REDIS_URL"
	EnvJWTSecret  = "ROOMGUARD_JWT_SECRET"
	EnvJWTIssuer  = "ROOMGUARD_JWT_ISSUER"
	EnvUseSQLite  = "ROOMGUARD_USE_SQLITE"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.App.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string        `envconfig:"ROOMGUARD_APP_ENV" required:"true"`
	Port         string        `envconfig:"ROOMGUARD_APP_PORT" default:"8080"`
	ServerName   string        `envconfig:"ROOMGUARD_SERVER_NAME" required:"true"`
	LogLevel     string        `envconfig:"ROOMGUARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool          `envconfig:"ROOMGUARD_LOG_WARN_STACK" default:"false"`
	ShutdownWait time.Duration `envconfig:"ROOMGUARD_SHUTDOWN_WAIT" default:"15s"`
	CORSOrigins  []string      `envconfig:"ROOMGUARD_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

func (a AppConfig) validate() error {
	name := strings.TrimSpace(a.ServerName)
	if name == "" || strings.ContainsAny(name, ":/ ") {
		return fmt.Errorf("invalid server name %q", a.ServerName)
	}
	return nil
}

type DBConfig struct {
	DSN    string `envconfig:"ROOMGUARD_DB_DSN"`
	Driver string `envconfig:"ROOMGUARD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ROOMGUARD_DB_HOST"`
	LegacyPort     int    `envconfig:"ROOMGUARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ROOMGUARD_DB_USER"`
	LegacyPassword string `envconfig:"ROOMGUARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"ROOMGUARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"ROOMGUARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ROOMGUARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ROOMGUARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ROOMGUARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ROOMGUARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ROOMGUARD_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"ROOMGUARD_REDIS_URL"`
	Address      string        `envconfig:"ROOMGUARD_REDIS_ADDR"`
	Password     string        `envconfig:"ROOMGUARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"ROOMGUARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ROOMGUARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ROOMGUARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ROOMGUARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ROOMGUARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ROOMGUARD_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"ROOMGUARD_REDIS_KEY_PREFIX" default:"rg"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ROOMGUARD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ROOMGUARD_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ROOMGUARD_JWT_EXPIRATION_MINUTES" default:"60"`
	RequireSession    bool   `envconfig:"ROOMGUARD_JWT_REQUIRE_SESSION" default:"true"`
}

// AccessTTL returns the access token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type RateLimitConfig struct {
	MembershipWindow time.Duration `envconfig:"ROOMGUARD_RATE_LIMIT_MEMBERSHIP_WINDOW" default:"1m"`
	MembershipLimit  int           `envconfig:"ROOMGUARD_RATE_LIMIT_MEMBERSHIP_LIMIT" default:"60"`
	RoomCreateWindow time.Duration `envconfig:"ROOMGUARD_RATE_LIMIT_ROOM_CREATE_WINDOW" default:"1h"`
	RoomCreateLimit  int           `envconfig:"ROOMGUARD_RATE_LIMIT_ROOM_CREATE_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ROOMGUARD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ROOMGUARD_AUTO_MIGRATE" default:"false"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"ROOMGUARD_METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"ROOMGUARD_METRICS_ADDR" default:":9090"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:roomguard.db?_busy_timeout=5000"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
