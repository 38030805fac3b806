// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moov-io/crm/admin"
	"github.com/moov-io/crm/pkg/tokenstore"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

var (
	httpAddr  = flag.String("http.addr", ":8080", "HTTP listen address")
	adminAddr = flag.String("admin.addr", ":9090", "Admin HTTP listen address")

	// Metrics
	authSuccesses = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_successes",
		Help: "Count of successful authorizations",
	}, []string{"method"})
	authFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_failures",
		Help: "Count of failed authorizations",
	}, []string{"method"})
	authInactivations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_inactivations",
		Help: "Count of inactivated auths (i.e. user logout)",
	}, []string{"method"})

	tokenGenerations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_token_generations",
		Help: "Count of auth tokens created",
	}, []string{"method"})

	internalServerErrors = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "http_internal_server_errors",
		Help: "Count of how many 5xx errors we send out",
	}, nil)
)

const Version = "0.1.0-dev"

func main() {
	flag.Parse()

	// A missing .env is fine, the environment may already be set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "problem reading .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logging, default to stderr
	logger := newLogger(cfg.LogFormat)
	logger.Log("startup", fmt.Sprintf("Starting crm server version %s", Version), "env", cfg.Environment)
	if cfg.ephemeralKey {
		logger.Log("startup", "TOKEN_SIGNING_KEY is not set, using a random key; tokens won't survive a restart")
	}

	admin.Init()

	// Setup storage
	db, err := openDatabase(logger, cfg)
	if err != nil {
		logger.Log("main", err)
		os.Exit(1)
	}
	defer db.Close()

	schema := newSchemaManager(logger, db)
	if err := schema.ensure(context.Background()); err != nil {
		logger.Log("main", fmt.Sprintf("problem running migrations: %v", err))
		os.Exit(1)
	}

	ctx, cancelCollector := context.WithCancel(context.Background())
	defer cancelCollector()
	go connectionCollector{}.run(ctx, db)

	revocations, err := tokenstore.New(cfg.RevocationPath)
	if err != nil {
		logger.Log("main", err)
		os.Exit(1)
	}
	defer revocations.Close()

	hasher := newArgonHasher(cfg.Argon2MemoryKiB, cfg.Argon2Iterations)
	deps := dependencies{
		schema:                schema,
		tokens:                newTokenService(cfg.SigningKey, cfg.TokenTTL),
		hasher:                hasher,
		revocations:           revocations,
		accounts:              newAccountRepository(logger, db, hasher),
		customers:             newCustomerRepository(logger, db),
		allowPrivilegedSignup: cfg.AllowPrivilegedSignup,
	}
	handler := setupRoutes(logger, deps)

	// Listen for application termination.
	errs := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errs <- fmt.Errorf("%s", <-c)
	}()

	readTimeout, _ := time.ParseDuration("30s")
	writTimeout, _ := time.ParseDuration("30s")
	idleTimeout, _ := time.ParseDuration("60s")

	serve := &http.Server{
		Addr:    *httpAddr,
		Handler: handler,
		TLSConfig: &tls.Config{
			InsecureSkipVerify: false,
			MinVersion:         tls.VersionTLS12,
		},
		ReadTimeout:  readTimeout,
		WriteTimeout: writTimeout,
		IdleTimeout:  idleTimeout,
	}
	shutdownServer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := serve.Shutdown(ctx); err != nil {
			logger.Log("shutdown", err)
		}
	}

	adminService := admin.NewServer(*adminAddr)
	adminService.AddLivenessCheck("database", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.ping(ctx)
	})
	adminService.AddLivenessCheck("tokenstore", func() error {
		_, err := revocations.Len()
		return err
	})
	go func() {
		logger.Log("admin", fmt.Sprintf("Starting admin service on %s", adminService.BindAddress()))
		if err := adminService.Listen(); err != nil {
			logger.Log("admin", "shutting down", "error", err)
		}
	}()

	go func() {
		logger.Log("transport", "HTTP", "addr", *httpAddr)
		errs <- serve.ListenAndServe()
	}()

	if err := <-errs; err != nil {
		adminService.Shutdown()
		shutdownServer()
		logger.Log("exit", err)
	}
}

func newLogger(format string) log.Logger {
	var logger log.Logger
	if format == "json" {
		logger = log.NewJSONLogger(os.Stderr)
	} else {
		logger = log.NewLogfmtLogger(os.Stderr)
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	return logger
}

// dependencies are the services handlers are built from.
type dependencies struct {
	schema      *schemaManager
	tokens      *tokenService
	hasher      passwordHasher
	revocations revocationStore
	accounts    accountRepository
	customers   customerRepository

	allowPrivilegedSignup bool
}

// setupRoutes builds the public HTTP handler. Everything except /ping runs
// behind the schema check, and everything except login and register also
// requires a bearer token.
func setupRoutes(logger log.Logger, deps dependencies) http.Handler {
	router := mux.NewRouter()
	router.Use(logRequests(logger))
	addPingRoute(router)

	api := router.NewRoute().Subrouter()
	api.Use(ensureSchema(logger, deps.schema))
	addLoginRoutes(api, logger, deps.tokens, deps.hasher, deps.accounts)
	addSignupRoutes(api, logger, deps.tokens, deps.accounts, deps.allowPrivilegedSignup)

	auth := &authenticator{
		tokens:  deps.tokens,
		revoked: deps.revocations,
		logger:  logger,
	}
	protected := api.NewRoute().Subrouter()
	protected.Use(auth.middleware)
	addLogoutRoutes(protected, logger, deps.tokens, deps.revocations)
	addAccountRoutes(protected, logger, deps.accounts)
	addCustomerRoutes(protected, logger, deps.customers)

	return router
}
