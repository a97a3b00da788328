package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("REGISTRY_TEST_FP_KEY", "from-env")

	path := writeConfig(t, `
listen_addr: ":8080"
fingerprint_key: "${REGISTRY_TEST_FP_KEY}"
db:
  driver: sqlite
  dsn: "file:registry.db"
ledger:
  append_timeout: 2s
transparency:
  poll_interval: 500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FingerprintKey != "from-env" {
		t.Fatalf("env not expanded: %q", cfg.FingerprintKey)
	}
	if cfg.Ledger.AppendTimeout.Std() != 2*time.Second {
		t.Fatalf("append_timeout = %v", cfg.Ledger.AppendTimeout.Std())
	}
	if cfg.Transparency.PollInterval.Std() != 500*time.Millisecond {
		t.Fatalf("poll_interval = %v", cfg.Transparency.PollInterval.Std())
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid memory", Config{ListenAddr: ":8080", FingerprintKey: "k"}, false},
		{"valid sqlite", Config{ListenAddr: ":8080", FingerprintKey: "k", DB: DBConfig{Driver: "sqlite", DSN: "file:x"}}, false},
		{"missing listen addr", Config{FingerprintKey: "k"}, true},
		{"missing fingerprint key", Config{ListenAddr: ":8080"}, true},
		{"driver without dsn", Config{ListenAddr: ":8080", FingerprintKey: "k", DB: DBConfig{Driver: "postgres"}}, true},
		{"unknown driver", Config{ListenAddr: ":8080", FingerprintKey: "k", DB: DBConfig{Driver: "oracle", DSN: "x"}}, true},
	}

	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
