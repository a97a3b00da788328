package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/openrights/registry/internal/api"
	"github.com/openrights/registry/internal/config"
	"github.com/openrights/registry/internal/store"
	"github.com/openrights/registry/internal/store/pgstore"
	"github.com/openrights/registry/internal/store/sqlstore"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type envFn func(string) string
type listenFn func(*http.Server) error
type serverFactory func(cfg config.Config) (*http.Server, func(), error)

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("registry-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to registry config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("REGISTRY_CONFIG_PATH")
	}

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	cfg.ListenAddr = firstNonEmpty(getenv("REGISTRY_LISTEN_ADDR"), cfg.ListenAddr, ":8080")
	cfg.FingerprintKey = firstNonEmpty(getenv("REGISTRY_FINGERPRINT_KEY"), cfg.FingerprintKey)
	if cfg.FingerprintKey == "" {
		return fmt.Errorf("fingerprint key is required (config fingerprint_key or REGISTRY_FINGERPRINT_KEY)")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	server, cleanup, err := factory(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Printf("registry-gateway listening on %s", cfg.ListenAddr)
	if err := listen(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func newServer(cfg config.Config) (*http.Server, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, err
	}

	st, closeStore, err := openStore(cfg.DB)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	svc, err := api.NewService(api.NewServiceInput{
		Store:          st,
		FingerprintKey: []byte(cfg.FingerprintKey),
		AppendTimeout:  cfg.Ledger.AppendTimeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		closeStore()
		_ = logger.Sync()
		return nil, nil, err
	}

	followerCtx, stopFollower := context.WithCancel(context.Background())
	svc.StartFollower(followerCtx, cfg.Transparency.PollInterval.Std())

	cleanup := func() {
		stopFollower()
		closeStore()
		_ = logger.Sync()
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(api.NewHandler(svc, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server, cleanup, nil
}

func openStore(db config.DBConfig) (store.Store, func(), error) {
	switch db.Driver {
	case "", "memory":
		return store.NewInMemoryStore(), func() {}, nil
	case "sqlite":
		st, err := sqlstore.OpenSQLite(db.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(st.DB(), store.DBSQLite); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "postgres":
		st, err := pgstore.OpenPostgres(db.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(st.DB(), store.DBPostgres); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown db driver %q", db.Driver)
	}
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
