// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads accountd configuration from defaults, an optional
// YAML file, command-line flags and the environment, in that order of
// increasing precedence.
package config

import (
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/logging"
	"github.com/holomush/accountd/internal/mail"
	"github.com/holomush/accountd/internal/store"
	"github.com/holomush/accountd/internal/token"
)

// Mail drivers.
const (
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

// Config is the complete accountd configuration.
type Config struct {
	HTTP          HTTPConfig          `koanf:"http" yaml:"http" envPrefix:"HTTP_"`
	Observability ObservabilityConfig `koanf:"observability" yaml:"observability" envPrefix:"OBSERVABILITY_"`
	Log           LogConfig           `koanf:"log" yaml:"log" envPrefix:"LOG_"`
	Store         StoreConfig         `koanf:"store" yaml:"store" envPrefix:"STORE_"`
	Token         TokenConfig         `koanf:"token" yaml:"token" envPrefix:"TOKEN_"`
	Mail          MailConfig          `koanf:"mail" yaml:"mail" envPrefix:"MAIL_"`
	Hash          HashConfig          `koanf:"hash" yaml:"hash" envPrefix:"HASH_"`
	Account       AccountConfig       `koanf:"account" yaml:"account" envPrefix:"ACCOUNT_"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr" env:"ADDR"`
	BasePath        string        `koanf:"base_path" yaml:"base_path" env:"BASE_PATH"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ObservabilityConfig configures the metrics and health listener. An empty
// address disables it.
type ObservabilityConfig struct {
	MetricsAddr string `koanf:"metrics_addr" yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" env:"FORMAT" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" env:"LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=warning,enum=error"`
}

// StoreConfig selects and configures the account repository.
type StoreConfig struct {
	Driver         string        `koanf:"driver" yaml:"driver" env:"DRIVER" jsonschema:"enum=memory,enum=mongo,enum=postgres"`
	MongoURI       string        `koanf:"mongo_uri" yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase  string        `koanf:"mongo_database" yaml:"mongo_database" env:"MONGO_DATABASE"`
	PostgresURL    string        `koanf:"postgres_url" yaml:"postgres_url" env:"POSTGRES_URL"`
	ConnectRetries uint64        `koanf:"connect_retries" yaml:"connect_retries" env:"CONNECT_RETRIES"`
	ConnectBackoff time.Duration `koanf:"connect_backoff" yaml:"connect_backoff" env:"CONNECT_BACKOFF"`
}

// TokenConfig configures both token signing domains.
type TokenConfig struct {
	SessionSecret string        `koanf:"session_secret" yaml:"session_secret" env:"SESSION_SECRET"`
	ResetSecret   string        `koanf:"reset_secret" yaml:"reset_secret" env:"RESET_SECRET"`
	SessionTTL    time.Duration `koanf:"session_ttl" yaml:"session_ttl" env:"SESSION_TTL"`
	ResetTTL      time.Duration `koanf:"reset_ttl" yaml:"reset_ttl" env:"RESET_TTL"`
	Issuer        string        `koanf:"issuer" yaml:"issuer" env:"ISSUER"`
}

// MailConfig selects the reset email transport.
type MailConfig struct {
	Driver string     `koanf:"driver" yaml:"driver" env:"DRIVER" jsonschema:"enum=smtp,enum=log"`
	SMTP   SMTPConfig `koanf:"smtp" yaml:"smtp" envPrefix:"SMTP_"`
}

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host       string        `koanf:"host" yaml:"host" env:"HOST"`
	Port       int           `koanf:"port" yaml:"port" env:"PORT"`
	Username   string        `koanf:"username" yaml:"username" env:"USERNAME"`
	Password   string        `koanf:"password" yaml:"password" env:"PASSWORD"`
	From       string        `koanf:"from" yaml:"from" env:"FROM"`
	Timeout    time.Duration `koanf:"timeout" yaml:"timeout" env:"TIMEOUT"`
	SkipVerify bool          `koanf:"skip_verify" yaml:"skip_verify" env:"SKIP_VERIFY"`
}

// HashConfig holds the argon2id cost parameters. Memory is in KiB.
type HashConfig struct {
	Time    uint32 `koanf:"time" yaml:"time" env:"TIME"`
	Memory  uint32 `koanf:"memory" yaml:"memory" env:"MEMORY"`
	Threads uint8  `koanf:"threads" yaml:"threads" env:"THREADS"`
}

// AccountConfig holds account flow switches.
type AccountConfig struct {
	ConcealUnknownEmail bool `koanf:"conceal_unknown_email" yaml:"conceal_unknown_email" env:"CONCEAL_UNKNOWN_EMAIL"`
}

// Default returns the built-in configuration.
func Default() Config {
	hash := account.DefaultArgon2Params()
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8000",
			BasePath:        "/api/v1/users",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Observability: ObservabilityConfig{MetricsAddr: "127.0.0.1:9100"},
		Log:           LogConfig{Format: "json", Level: "info"},
		Store: StoreConfig{
			Driver:         store.DriverMongo,
			MongoDatabase:  "accountd",
			ConnectRetries: store.DefaultConnectRetries,
			ConnectBackoff: store.DefaultConnectBackoff,
		},
		Token: TokenConfig{
			SessionTTL: token.DefaultSessionTTL,
			ResetTTL:   token.DefaultResetTTL,
			Issuer:     token.DefaultIssuer,
		},
		Mail: MailConfig{
			Driver: MailDriverSMTP,
			SMTP: SMTPConfig{
				Port:    587,
				Timeout: mail.DefaultSMTPTimeout,
			},
		},
		Hash: HashConfig{Time: hash.Time, Memory: hash.Memory, Threads: hash.Threads},
	}
}

// Validate checks the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if !strings.HasPrefix(c.HTTP.BasePath, "/") {
		return invalid("http.base_path", "http.base_path must start with '/', got %q", c.HTTP.BasePath)
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return invalid("http.shutdown_timeout", "http.shutdown_timeout must be positive")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Wrap(err)
	}

	switch c.Store.Driver {
	case store.DriverMemory:
	case store.DriverMongo:
		if c.Store.MongoURI == "" {
			return invalid("store.mongo_uri", "store.mongo_uri is required for the mongo driver")
		}
		if c.Store.MongoDatabase == "" {
			return invalid("store.mongo_database", "store.mongo_database is required for the mongo driver")
		}
	case store.DriverPostgres:
		if c.Store.PostgresURL == "" {
			return invalid("store.postgres_url", "store.postgres_url is required for the postgres driver")
		}
	default:
		return invalid("store.driver", "store.driver must be memory, mongo or postgres, got %q", c.Store.Driver)
	}

	if err := c.Token.IssuerConfig().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "token").Wrap(err)
	}

	switch c.Mail.Driver {
	case MailDriverLog:
	case MailDriverSMTP:
		if err := c.Mail.SMTP.SenderConfig().Validate(); err != nil {
			return oops.Code("CONFIG_INVALID").With("key", "mail.smtp").Wrap(err)
		}
	default:
		return invalid("mail.driver", "mail.driver must be 'smtp' or 'log', got %q", c.Mail.Driver)
	}

	if c.Hash.Time < 1 || c.Hash.Threads < 1 {
		return invalid("hash", "hash.time and hash.threads must be at least 1")
	}
	if c.Hash.Memory < 8*uint32(c.Hash.Threads) {
		return invalid("hash.memory", "hash.memory must be at least 8 KiB per thread")
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// IssuerConfig converts the token settings for token.NewIssuer.
func (c TokenConfig) IssuerConfig() token.Config {
	return token.Config{
		SessionSecret: []byte(c.SessionSecret),
		ResetSecret:   []byte(c.ResetSecret),
		SessionTTL:    c.SessionTTL,
		ResetTTL:      c.ResetTTL,
		Issuer:        c.Issuer,
	}
}

// SenderConfig converts the SMTP settings for mail.NewSMTPSender.
func (c SMTPConfig) SenderConfig() mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:       c.Host,
		Port:       c.Port,
		Username:   c.Username,
		Password:   c.Password,
		From:       c.From,
		Timeout:    c.Timeout,
		SkipVerify: c.SkipVerify,
	}
}

// BackendConfig converts the store settings for store.Open.
func (c StoreConfig) BackendConfig() store.Config {
	return store.Config{
		Driver:         c.Driver,
		MongoURI:       c.MongoURI,
		MongoDatabase:  c.MongoDatabase,
		PostgresURL:    c.PostgresURL,
		ConnectRetries: c.ConnectRetries,
		ConnectBackoff: c.ConnectBackoff,
	}
}

// HasherParams converts the hash settings for the argon2id hasher.
func (c HashConfig) HasherParams() account.Argon2Params {
	return account.Argon2Params{Time: c.Time, Memory: c.Memory, Threads: c.Threads}
}

const redacted = "[redacted]"

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.Token.SessionSecret = mask(c.Token.SessionSecret)
	c.Token.ResetSecret = mask(c.Token.ResetSecret)
	c.Mail.SMTP.Password = mask(c.Mail.SMTP.Password)
	c.Store.MongoURI = mask(c.Store.MongoURI)
	c.Store.PostgresURL = mask(c.Store.PostgresURL)
	return c
}
