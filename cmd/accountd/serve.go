// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/httpapi"
	"github.com/holomush/accountd/internal/logging"
	"github.com/holomush/accountd/internal/mail"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/internal/store"
	"github.com/holomush/accountd/internal/token"
	"github.com/holomush/accountd/pkg/errutil"
)

const serviceName = "accountd"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the HTTP API serving registration, login, sessions and
password recovery, plus the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveConfigFile()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("operation", "load configuration").Wrap(err)
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// newMailSender builds the transport named by cfg.Driver. The log driver
// writes messages to logOut instead of delivering them.
func newMailSender(cfg config.MailConfig, logOut io.Writer) (mail.Sender, error) {
	switch cfg.Driver {
	case config.MailDriverLog:
		return mail.NewWriterSender(logOut), nil
	case config.MailDriverSMTP:
		sender, err := mail.NewSMTPSender(cfg.SMTP.SenderConfig())
		if err != nil {
			return nil, err
		}
		return sender, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("mail_driver", cfg.Driver).Errorf("unknown mail driver %q", cfg.Driver)
	}
}

// runServeWithDeps starts the API server with injectable dependencies and
// blocks until a signal, a server failure or ctx cancellation.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if deps.StoreOpener == nil {
		deps.StoreOpener = store.Open
	}
	if deps.MailSenderFactory == nil {
		deps.MailSenderFactory = newMailSender
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	if deps.LogOutput == nil {
		deps.LogOutput = os.Stderr
	}

	logger, err := logging.Setup(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	}, deps.LogOutput)
	if err != nil {
		return oops.Code("LOGGING_SETUP_FAILED").Wrap(err)
	}
	slog.SetDefault(logger)

	logger.Info("starting account service",
		"addr", cfg.HTTP.Addr,
		"base_path", cfg.HTTP.BasePath,
		"store_driver", cfg.Store.Driver,
		"mail_driver", cfg.Mail.Driver,
	)

	backend, err := deps.StoreOpener(ctx, cfg.Store.BackendConfig(), logger)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer closeCancel()
		if closeErr := backend.Close(closeCtx); closeErr != nil {
			errutil.LogError(logger, "error closing account store", closeErr)
		}
	}()

	logger.Info("connected to account store", "driver", cfg.Store.Driver)

	obsServer := deps.ObservabilityServerFactory(cfg.Observability.MetricsAddr, func(ctx context.Context) bool {
		return backend.Ping(ctx) == nil
	})
	metrics := obsServer.Metrics()

	issuer, err := token.NewIssuer(cfg.Token.IssuerConfig(), token.WithLogger(logger))
	if err != nil {
		return oops.Code("TOKEN_SETUP_FAILED").Wrap(err)
	}

	sender, err := deps.MailSenderFactory(cfg.Mail, deps.LogOutput)
	if err != nil {
		return oops.Code("MAIL_SETUP_FAILED").With("driver", cfg.Mail.Driver).Wrap(err)
	}
	sender = mail.Instrument(sender, metrics)

	creds, err := account.NewCredentialStore(backend,
		account.NewArgon2idHasherWithParams(cfg.Hash.HasherParams()),
		account.WithCredentialLogger(logger),
	)
	if err != nil {
		return oops.Code("ACCOUNT_SETUP_FAILED").Wrap(err)
	}
	svc, err := account.NewService(creds, issuer, sender,
		account.WithLogger(logger),
		account.WithConcealUnknownEmail(cfg.Account.ConcealUnknownEmail),
	)
	if err != nil {
		return oops.Code("ACCOUNT_SETUP_FAILED").Wrap(err)
	}

	auth, err := httpapi.NewAuthenticator(issuer, svc,
		httpapi.WithAuthMetrics(metrics),
		httpapi.WithAuthLogger(logger),
	)
	if err != nil {
		return oops.Code("HTTP_SETUP_FAILED").Wrap(err)
	}
	router, err := httpapi.NewRouter(svc, auth,
		httpapi.WithBasePath(cfg.HTTP.BasePath),
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(metrics),
	)
	if err != nil {
		return oops.Code("HTTP_SETUP_FAILED").Wrap(err)
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErrChan := make(chan error, 1)
	go func() {
		defer close(httpErrChan)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrChan <- serveErr
		}
	}()

	logger.Info("API server listening", "addr", listener.Addr().String())

	obsStarted := false
	if cfg.Observability.MetricsAddr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer shutdownCancel()
			if stopErr := httpServer.Shutdown(shutdownCtx); stopErr != nil {
				logger.Warn("failed to stop API server during cleanup", "error", stopErr)
			}
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Observability.MetricsAddr).Wrap(err)
		}
		obsStarted = true
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Account service started")

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err, ok := <-httpErrChan:
		if ok && err != nil {
			serveErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
			errutil.LogError(logger, "API server error, shutting down", serveErr)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping API server", "error", err)
	}
	if obsStarted {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return serveErr
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
