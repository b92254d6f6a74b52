package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	Storage StorageConfig
	Cart    CartConfig
	Redis   RedisConfig
	DB      DBConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.App.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && cfg.Storage.Backend == BackendMemory {
		return nil, fmt.Errorf("%s=%s keeps the cart for one process only and is not allowed when %s=%s",
			EnvStorageBackend, BackendMemory, EnvAppEnv, AppEnvProd)
	}
	if cfg.Storage.Backend == BackendPostgres {
		if err := cfg.DB.EnsureDSN(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

type AppConfig struct {
	Env             string        `envconfig:"UNIBAZZAR_APP_ENV" default:"dev"`
	Port            string        `envconfig:"UNIBAZZAR_APP_PORT" default:"8080"`
	LogLevel        string        `envconfig:"UNIBAZZAR_LOG_LEVEL" default:"info"`
	LogWarnStack    bool          `envconfig:"UNIBAZZAR_LOG_WARN_STACK" default:"false"`
	ShutdownTimeout time.Duration `envconfig:"UNIBAZZAR_SHUTDOWN_TIMEOUT" default:"10s"`
	AutoMigrate     bool          `envconfig:"UNIBAZZAR_AUTO_MIGRATE" default:"false"`
	CORSOrigins     []string      `envconfig:"UNIBAZZAR_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

func (a *AppConfig) validate() error {
	a.Env = strings.ToLower(strings.TrimSpace(a.Env))
	if a.Env != AppEnvDev && a.Env != AppEnvProd {
		return fmt.Errorf("%s must be %s or %s, got %q", EnvAppEnv, AppEnvDev, AppEnvProd, a.Env)
	}
	port, err := strconv.Atoi(strings.TrimSpace(a.Port))
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%s must be a TCP port, got %q", EnvPort, a.Port)
	}
	return nil
}

// StorageConfig selects where cart snapshots are written.
type StorageConfig struct {
	Backend    string `envconfig:"UNIBAZZAR_STORAGE_BACKEND" default:"file"`
	FileDir    string `envconfig:"UNIBAZZAR_STORAGE_FILE_DIR" default:"./data"`
	SQLitePath string `envconfig:"UNIBAZZAR_STORAGE_SQLITE_PATH" default:"./data/cart.db"`
}

func (s *StorageConfig) validate() error {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = BackendFile
	}
	for _, candidate := range validBackends {
		if candidate != s.Backend {
			continue
		}
		if s.Backend == BackendFile && strings.TrimSpace(s.FileDir) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvStorageFileDir, EnvStorageBackend, BackendFile)
		}
		return nil
	}
	return fmt.Errorf("%s must be one of %s, got %q", EnvStorageBackend, strings.Join(validBackends, "|"), s.Backend)
}

type CartConfig struct {
	StorageKey     string        `envconfig:"UNIBAZZAR_CART_STORAGE_KEY" default:"cart"`
	StrictPrices   bool          `envconfig:"UNIBAZZAR_CART_STRICT_PRICES" default:"false"`
	PersistTimeout time.Duration `envconfig:"UNIBAZZAR_CART_PERSIST_TIMEOUT" default:"2s"`
	IdempotencyTTL time.Duration `envconfig:"UNIBAZZAR_CART_IDEMPOTENCY_TTL" default:"24h"`
}

type RedisConfig struct {
	URL          string        `envconfig:"UNIBAZZAR_REDIS_URL"`
	Address      string        `envconfig:"UNIBAZZAR_REDIS_ADDR"`
	Password     string        `envconfig:"UNIBAZZAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"UNIBAZZAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"UNIBAZZAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"UNIBAZZAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"UNIBAZZAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"UNIBAZZAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"UNIBAZZAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type DBConfig struct {
	DSN string `envconfig:"UNIBAZZAR_DB_DSN"`

	Host     string `envconfig:"UNIBAZZAR_DB_HOST"`
	Port     int    `envconfig:"UNIBAZZAR_DB_PORT" default:"5432"`
	User     string `envconfig:"UNIBAZZAR_DB_USER"`
	Password string `envconfig:"UNIBAZZAR_DB_PASSWORD"`
	Name     string `envconfig:"UNIBAZZAR_DB_NAME"`
	SSLMode  string `envconfig:"UNIBAZZAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"UNIBAZZAR_DB_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int           `envconfig:"UNIBAZZAR_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"UNIBAZZAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"UNIBAZZAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// EnsureDSN builds DSN from the UNIBAZZAR_DB_* parts when it is not set directly.
func (db *DBConfig) EnsureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
