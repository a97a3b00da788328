package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/openrights/registry/internal/config"
)

func TestRunDefaults(t *testing.T) {
	factory := func(cfg config.Config) (*http.Server, func(), error) {
		if cfg.ListenAddr != ":8080" {
			t.Fatalf("expected default addr, got %s", cfg.ListenAddr)
		}
		if cfg.FingerprintKey != "test-key" {
			t.Fatalf("expected key from env, got %q", cfg.FingerprintKey)
		}
		return &http.Server{Addr: cfg.ListenAddr}, func() {}, nil
	}

	listen := func(_ *http.Server) error {
		return http.ErrServerClosed
	}

	getenv := func(key string) string {
		if key == "REGISTRY_FINGERPRINT_KEY" {
			return "test-key"
		}
		return ""
	}
	if err := run(nil, getenv, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunRequiresFingerprintKey(t *testing.T) {
	factory := func(config.Config) (*http.Server, func(), error) {
		t.Fatalf("factory should not be called")
		return nil, nil, nil
	}
	getenv := func(string) string { return "" }

	if err := run(nil, getenv, nil, factory); err == nil {
		t.Fatalf("expected error for missing fingerprint key")
	}
}

func TestRunListenError(t *testing.T) {
	listenErr := errors.New("listen failed")
	listen := func(_ *http.Server) error {
		return listenErr
	}
	factory := func(cfg config.Config) (*http.Server, func(), error) {
		return &http.Server{Addr: cfg.ListenAddr}, func() {}, nil
	}
	getenv := func(key string) string {
		switch key {
		case "REGISTRY_LISTEN_ADDR":
			return "127.0.0.1:1234"
		case "REGISTRY_FINGERPRINT_KEY":
			return "test-key"
		}
		return ""
	}

	if err := run(nil, getenv, listen, factory); !errors.Is(err, listenErr) {
		t.Fatalf("expected listen error, got %v", err)
	}
}

func TestRunLoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	contents := "listen_addr: \":9999\"\nfingerprint_key: \"from-config\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	factory := func(cfg config.Config) (*http.Server, func(), error) {
		if cfg.ListenAddr != ":9999" {
			t.Fatalf("expected addr from config, got %s", cfg.ListenAddr)
		}
		if cfg.FingerprintKey != "from-config" {
			t.Fatalf("expected key from config, got %q", cfg.FingerprintKey)
		}
		return &http.Server{Addr: cfg.ListenAddr}, func() {}, nil
	}

	listen := func(_ *http.Server) error { return http.ErrServerClosed }
	getenv := func(key string) string {
		if key == "REGISTRY_CONFIG_PATH" {
			return path
		}
		return ""
	}

	if err := run(nil, getenv, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewServerMemoryStore(t *testing.T) {
	cfg := config.Config{
		ListenAddr:     "127.0.0.1:9999",
		FingerprintKey: "test-key",
	}
	srv, cleanup, err := newServer(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer cleanup()

	if srv.Addr != cfg.ListenAddr {
		t.Fatalf("expected addr %s, got %s", cfg.ListenAddr, srv.Addr)
	}

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestNewServerSQLiteStore(t *testing.T) {
	cfg := config.Config{
		ListenAddr:     "127.0.0.1:9999",
		FingerprintKey: "test-key",
		DB: config.DBConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(t.TempDir(), "registry.db"),
		},
	}
	srv, cleanup, err := newServer(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer cleanup()
	if srv.Handler == nil {
		t.Fatalf("expected handler to be set")
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, _, err := openStore(config.DBConfig{Driver: "oracle"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "a", "b"); got != "a" {
		t.Fatalf("expected a, got %s", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected empty, got %s", got)
	}
}

func TestListenAndServeInvalidAddr(t *testing.T) {
	err := listenAndServe(&http.Server{Addr: "127.0.0.1"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestMainNoError(t *testing.T) {
	oldRun := runFn
	oldFatal := fatalf
	defer func() {
		runFn = oldRun
		fatalf = oldFatal
	}()

	runFn = func([]string, envFn, listenFn, serverFactory) error {
		return nil
	}

	called := false
	fatalf = func(string, ...any) {
		called = true
	}

	main()
	if called {
		t.Fatalf("unexpected fatal call")
	}
}

func TestMainError(t *testing.T) {
	oldRun := runFn
	oldFatal := fatalf
	defer func() {
		runFn = oldRun
		fatalf = oldFatal
	}()

	runFn = func([]string, envFn, listenFn, serverFactory) error {
		return errors.New("boom")
	}

	called := false
	fatalf = func(string, ...any) {
		called = true
	}

	main()
	if !called {
		t.Fatalf("expected fatal call")
	}
}
