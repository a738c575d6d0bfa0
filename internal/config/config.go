package config // package config loads application configuration from environment variables

import (
	"os"   // os provides access to environment variables
	"time" // time parses shutdown timeouts

	"github.com/joho/godotenv" // godotenv loads a local .env file when present

	"github.com/iliyamo/live-auction/internal/utils" // utils provides the structured logger
)

// Store drivers understood by STORE_DRIVER.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds the process-level runtime configuration.  Concern-specific
// settings (Redis, cache, rate limits, queue, bidding) live in their own
// LoadXxxConfig functions so each component only receives what it uses.
type Config struct {
	Env             string        // application environment (e.g. "dev", "prod")
	Port            string        // HTTP port to listen on
	InstanceID      string        // identifies this process in cross-instance broadcasts
	LogLevel        string        // logrus level name
	StoreDriver     string        // "mysql" or "memory"
	DBUser          string        // database username
	DBPass          string        // database password (optional)
	DBHost          string        // database host address
	DBPort          string        // database port number
	DBName          string        // database name
	DBAutoMigrate   bool          // create tables at startup
	JWTSecret       string        // secret used to verify JWTs
	ShutdownTimeout time.Duration // grace period for in-flight requests on shutdown
}

// Load reads configuration values from the environment (and an optional .env
// file) and returns a Config.  Required variables are enforced by must() and
// missing values terminate the process.  Database variables are only
// required when the MySQL store is selected.
func Load() Config {
	_ = godotenv.Load() // a missing .env file is normal outside local development

	cfg := Config{
		Env:             envStr("APP_ENV", "dev"),                   // environment (dev/test/prod)
		Port:            must("APP_PORT"),                           // port to bind the HTTP server
		InstanceID:      envStr("INSTANCE_ID", utils.NewID()),       // random when not pinned
		LogLevel:        envStr("LOG_LEVEL", "info"),                // logrus level
		StoreDriver:     envStr("STORE_DRIVER", StoreMySQL),         // persistence gateway implementation
		JWTSecret:       must("JWT_SECRET"),                         // secret used for verifying JWTs
		DBAutoMigrate:   envBool("DB_AUTO_MIGRATE", false),          // run EnsureSchema on boot
		ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second), // graceful shutdown budget
	}
	if cfg.StoreDriver == StoreMySQL {
		cfg.DBUser = must("DB_USER")           // database user
		cfg.DBPass = os.Getenv("DB_PASS")      // database password (empty allowed)
		cfg.DBHost = must("DB_HOST")           // database host
		cfg.DBPort = envStr("DB_PORT", "3306") // database port
		cfg.DBName = must("DB_NAME")           // database name
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		utils.Fatal("missing required env var", map[string]any{"key": key})
	}
	return v
}
