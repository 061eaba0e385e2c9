package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"task-board/internal/repository/sqldb"
)

const envProduction = "production"

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr        string
		Env         string
		CORSOrigins []string
	}
	Database struct {
		Driver string
		DSN    string
	}
	Auth struct {
		JWTSecret         string
		TokenTTL          time.Duration
		CookieName        string
		BootstrapEmail    string
		BootstrapPassword string
	}
	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("TASKBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// conventional names used by most deployments
	_ = v.BindEnv("auth.jwtsecret", "TASKBOARD_AUTH_JWTSECRET", "JWT_SECRET")
	_ = v.BindEnv("database.dsn", "TASKBOARD_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("server.env", "TASKBOARD_SERVER_ENV", "APP_ENV")

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.corsorigins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/tasks.db")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", "24h")
	v.SetDefault("auth.cookiename", "token")
	v.SetDefault("auth.bootstrapemail", "")
	v.SetDefault("auth.bootstrappassword", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth jwt secret is required")
	}
	if _, err := sqldb.DialectFor(c.Database.Driver); err != nil {
		return err
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth token ttl must not be negative")
	}
	return nil
}

// IsProduction reports whether cookies should be marked Secure.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Server.Env), envProduction)
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
