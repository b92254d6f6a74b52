package config

// EnvPrefix is empty because every field spells out its full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

var validBackends = []string{BackendFile, BackendRedis, BackendPostgres, BackendSQLite, BackendMemory}

const (
	EnvAppEnv             = "UNIBAZZAR_APP_ENV"
	EnvPort               = "UNIBAZZAR_APP_PORT"
	EnvCORSOrigins        = "UNIBAZZAR_CORS_ORIGINS"
	EnvStorageBackend     = "UNIBAZZAR_STORAGE_BACKEND"
	EnvStorageFileDir     = "UNIBAZZAR_STORAGE_FILE_DIR"
	EnvCartStorageKey     = "UNIBAZZAR_CART_STORAGE_KEY"
	EnvCartStrictPrices   = "UNIBAZZAR_CART_STRICT_PRICES"
	EnvCartPersistTimeout = "UNIBAZZAR_CART_PERSIST_TIMEOUT"
	EnvRedisURL           = "UNIBAZZAR_REDIS_URL"
	EnvDBDSN              = "UNIBAZZAR_DB_DSN"
	EnvDBHost             = "UNIBAZZAR_DB_HOST"
	EnvDBUser             = "UNIBAZZAR_DB_USER"
	EnvDBPassword         = "UNIBAZZAR_DB_PASSWORD"
	EnvDBName             = "UNIBAZZAR_DB_NAME"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
