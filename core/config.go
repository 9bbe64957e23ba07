package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // "postgres" or "memory"
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ImportConfig struct {
		MaxUploadSize    int64 // bytes
		BlankScore       string
		AdmissionRetries int
	}

	Config struct {
		AppName                   string
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		WorkDir                   string
		SecretKey                 string
		RollbarToken              string
		SendgridApiKey            string
		FrontendBaseURL           string
		PasswordResetTimeoutDelta time.Duration
		Server                    ServerConfig
		Database                  DatabaseConfig
		Import                    ImportConfig

		defaultFromEmail string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// DefaultFromEmail parses the configured sender address, falling back to a bare address on error.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Address: c.defaultFromEmail}
	}
	return *addr
}

// NewConfig loads the configuration for the current ENV (DEV by default) from
// the environment and an optional `config/.env.<env>` file.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("APP_NAME", "SchoolSaaS")
	v.SetDefault("BUILD", "develop")
	v.SetDefault("DEBUG", true)
	v.SetDefault("TEST_MODE", false)
	v.SetDefault("SECRET_KEY", "k2m$9vzn+0w1)q7!hy=da@3t#x5p_r8e^u4f&c6(bgjls*o")
	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("DEFAULT_FROM_EMAIL", "SchoolSaaS <noreply@localhost>")
	v.SetDefault("FRONTEND_BASE_URL", "http://localhost:3000")
	v.SetDefault("PASSWORD_RESET_TIMEOUT_DELTA", 3*24*time.Hour)

	v.SetDefault("SERVER_HOST", "localhost")
	v.SetDefault("SERVER_ADDRESS", ":8000")
	v.SetDefault("SERVER_DEBUG_HOST", ":4000")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second)
	v.SetDefault("SERVER_JWT_EXPIRATION_DELTA", 7*24*time.Hour)
	v.SetDefault("SERVER_JWT_REFRESH_EXPIRATION_DELTA", 4*time.Hour)

	v.SetDefault("DATABASE_ENGINE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "schoolsaas")
	v.SetDefault("DATABASE_USER", "schoolsaas")
	v.SetDefault("DATABASE_PASSWORD", "schoolsaas")
	v.SetDefault("DATABASE_ADMIN_USER", "postgres")
	v.SetDefault("DATABASE_ADMIN_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DISABLE_TLS", true)

	v.SetDefault("IMPORT_MAX_UPLOAD_SIZE", int64(10<<20))
	v.SetDefault("IMPORT_BLANK_SCORE", "zero")
	v.SetDefault("IMPORT_ADMISSION_RETRIES", 0)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("TEST_MODE", true)
	}
	v.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:                   v.GetString("APP_NAME"),
		Env:                       env,
		Build:                     v.GetString("BUILD"),
		Debug:                     v.GetBool("DEBUG"),
		TestMode:                  v.GetBool("TEST_MODE"),
		WorkDir:                   workDir,
		SecretKey:                 v.GetString("SECRET_KEY"),
		RollbarToken:              v.GetString("ROLLBAR_TOKEN"),
		SendgridApiKey:            v.GetString("SENDGRID_API_KEY"),
		FrontendBaseURL:           v.GetString("FRONTEND_BASE_URL"),
		PasswordResetTimeoutDelta: v.GetDuration("PASSWORD_RESET_TIMEOUT_DELTA"),
		Server: ServerConfig{
			Host:                      v.GetString("SERVER_HOST"),
			Address:                   v.GetString("SERVER_ADDRESS"),
			DebugHost:                 v.GetString("SERVER_DEBUG_HOST"),
			ShutdownTimeout:           v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			JWTExpirationDelta:        v.GetDuration("SERVER_JWT_EXPIRATION_DELTA"),
			JWTRefreshExpirationDelta: v.GetDuration("SERVER_JWT_REFRESH_EXPIRATION_DELTA"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("DATABASE_ENGINE"),
			Host:          v.GetString("DATABASE_HOST"),
			Port:          v.GetString("DATABASE_PORT"),
			Name:          v.GetString("DATABASE_NAME"),
			User:          v.GetString("DATABASE_USER"),
			Password:      v.GetString("DATABASE_PASSWORD"),
			AdminUser:     v.GetString("DATABASE_ADMIN_USER"),
			AdminPassword: v.GetString("DATABASE_ADMIN_PASSWORD"),
			DisableTLS:    v.GetBool("DATABASE_DISABLE_TLS"),
		},
		Import: ImportConfig{
			MaxUploadSize:    v.GetInt64("IMPORT_MAX_UPLOAD_SIZE"),
			BlankScore:       v.GetString("IMPORT_BLANK_SCORE"),
			AdmissionRetries: v.GetInt("IMPORT_ADMISSION_RETRIES"),
		},
		defaultFromEmail: v.GetString("DEFAULT_FROM_EMAIL"),
	}
}
