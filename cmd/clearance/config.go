package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/clearance/internal/logger"
)

const (
	defaultListenAddr           = "localhost:8000"
	defaultLoggingLevel         = logger.LevelInfo
	defaultEnvironment          = logger.EnvProduction
	defaultAccessTokenTTL       = 15 * time.Minute
	defaultRefreshTokenTTL      = 7 * 24 * time.Hour
	defaultLoginMaxAttempts     = 5
	defaultLoginWindow          = 15 * time.Minute
	defaultPasswordExpiryMonths = 3
	defaultSweepInterval        = 10 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the clearance service will be run
	ListenAddr string

	// Database to connect to
	// Empty means in memory storage, allowed in dev environment only
	DatabaseDSN string

	// Secret key JWT tokens are signed with
	SecretKey string

	// Environment
	Environment string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Failed logins allowed per client within the window
	LoginMaxAttempts int
	LoginWindow      time.Duration

	PasswordExpiryMonths int

	// How often expired refresh tokens and idle limiter windows are dropped
	SweepInterval time.Duration

	// Send refresh cookie over https only
	CookieSecure bool

	// Admin created on start if not exists yet
	AdminName       string
	AdminDepartment string
	AdminPassword   string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:             defaultLoggingLevel,
		ListenAddr:           defaultListenAddr,
		Environment:          defaultEnvironment,
		AccessTokenTTL:       defaultAccessTokenTTL,
		RefreshTokenTTL:      defaultRefreshTokenTTL,
		LoginMaxAttempts:     defaultLoginMaxAttempts,
		LoginWindow:          defaultLoginWindow,
		PasswordExpiryMonths: defaultPasswordExpiryMonths,
		SweepInterval:        defaultSweepInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"SECRET_KEY":             setString(&c.SecretKey),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
		"ACCESS_TOKEN_TTL":       setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":      setDuration(&c.RefreshTokenTTL),
		"LOGIN_MAX_ATTEMPTS":     setInt(&c.LoginMaxAttempts),
		"LOGIN_WINDOW":           setDuration(&c.LoginWindow),
		"PASSWORD_EXPIRY_MONTHS": setInt(&c.PasswordExpiryMonths),
		"SWEEP_INTERVAL":         setDuration(&c.SweepInterval),
		"COOKIE_SECURE":          setBool(&c.CookieSecure),
		"ADMIN_NAME":             setString(&c.AdminName),
		"ADMIN_DEPARTMENT":       setString(&c.AdminDepartment),
		"ADMIN_PASSWORD":         setString(&c.AdminPassword),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("clearance", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, production)")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.IntVar(&c.LoginMaxAttempts, "login-max-attempts", c.LoginMaxAttempts, "Failed logins allowed within the window")
	fs.DurationVar(&c.LoginWindow, "login-window", c.LoginWindow, "Failed login window")
	fs.IntVar(&c.PasswordExpiryMonths, "password-expiry-months", c.PasswordExpiryMonths, "Months password is accepted after change")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Cleanup interval")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", c.CookieSecure, "Send refresh cookie over https only")

	return fs.Parse(args)
}

// Validate checks options that have no sane default
func (c *Config) Validate() error {
	switch {
	case c.SecretKey == "":
		return errors.New("secret key must be set")
	case c.DatabaseDSN == "" && c.Environment != logger.EnvDevelopment:
		return errors.New("database must be set, in memory storage is allowed in dev environment only")
	case c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0:
		return errors.New("token lifetimes must be positive")
	case c.AccessTokenTTL >= c.RefreshTokenTTL:
		return errors.New("access token must live shorter than refresh token")
	case c.LoginMaxAttempts <= 0 || c.LoginWindow <= 0:
		return errors.New("login rate limit must be positive")
	case c.PasswordExpiryMonths <= 0:
		return errors.New("password expiry must be positive")
	case c.SweepInterval <= 0:
		return errors.New("sweep interval must be positive")
	case (c.AdminName == "") != (c.AdminPassword == ""):
		return errors.New("admin name and password must be set together")
	}
	return nil
}
