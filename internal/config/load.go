// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable accountd reads, apart from
// the legacy unprefixed names.
const EnvPrefix = "ACCOUNTD_"

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"addr":           "http.addr",
	"base-path":      "http.base_path",
	"metrics-addr":   "observability.metrics_addr",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"store-driver":   "store.driver",
	"mongo-uri":      "store.mongo_uri",
	"mongo-database": "store.mongo_database",
	"postgres-url":   "store.postgres_url",
	"mail-driver":    "mail.driver",
}

// RegisterFlags adds the configuration flags to fs, showing built-in
// defaults in help output.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.HTTP.Addr, "API listen address")
	fs.String("base-path", d.HTTP.BasePath, "path prefix of the account routes")
	fs.String("metrics-addr", d.Observability.MetricsAddr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.Log.Format, "log format (json, text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store-driver", d.Store.Driver, "account store (memory, mongo, postgres)")
	fs.String("mongo-uri", d.Store.MongoURI, "MongoDB connection URI")
	fs.String("mongo-database", d.Store.MongoDatabase, "MongoDB database name")
	fs.String("postgres-url", d.Store.PostgresURL, "PostgreSQL connection URL")
	fs.String("mail-driver", d.Mail.Driver, "reset email transport (smtp, log)")
}

// GmailSMTPHost is the relay used when only the original deployment's mail
// account variables are set.
const GmailSMTPHost = "smtp.gmail.com"

// legacyEnv holds the unprefixed variable names the original deployment
// set, plus the conventional DATABASE_URL.
type legacyEnv struct {
	AccessTokenSecret string `env:"ACCESS_TOKEN_SECRET"`
	JWTSecretKey      string `env:"JWT_SECRET_KEY"`
	MongoURI          string `env:"MONGODB_URI"`
	DatabaseURL       string `env:"DATABASE_URL"`
	Email             string `env:"EMAIL"`
	EmailPassword     string `env:"PASSWORD_APP_EMAIL"`
}

func (l legacyEnv) apply(cfg *Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Token.SessionSecret, l.AccessTokenSecret)
	set(&cfg.Token.ResetSecret, l.JWTSecretKey)
	set(&cfg.Store.MongoURI, l.MongoURI)
	set(&cfg.Store.PostgresURL, l.DatabaseURL)

	// The mail account doubles as login and sender, on Gmail's relay.
	set(&cfg.Mail.SMTP.Username, l.Email)
	set(&cfg.Mail.SMTP.From, l.Email)
	set(&cfg.Mail.SMTP.Password, l.EmailPassword)
	if (l.Email != "" || l.EmailPassword != "") && cfg.Mail.SMTP.Host == "" {
		cfg.Mail.SMTP.Host = GmailSMTPHost
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty), the flags in fs that were set explicitly, and the process
// environment. The result is validated.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	return load(path, fs, env.ToMap(os.Environ()))
}

// Read layers the configuration like Load but skips validation, for
// commands that need only part of it.
func Read(path string, fs *pflag.FlagSet) (Config, error) {
	return read(path, fs, env.ToMap(os.Environ()))
}

func load(path string, fs *pflag.FlagSet, environ map[string]string) (Config, error) {
	cfg, err := read(path, fs, environ)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func read(path string, fs *pflag.FlagSet, environ map[string]string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateSchema(data); err != nil {
			return Config{}, oops.With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}

	var legacy legacyEnv
	if err := env.ParseWithOptions(&legacy, env.Options{Environment: environ}); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}
	legacy.apply(&cfg)

	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ, Prefix: EnvPrefix}); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}
	return cfg, nil
}
