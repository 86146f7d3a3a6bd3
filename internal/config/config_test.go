package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"example.com/fairticket/internal/domain"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.BatchMaxWait != 50*time.Millisecond {
		t.Fatalf("expected 50ms batch wait, got %s", cfg.BatchMaxWait)
	}
	if len(cfg.APIKeyPrincipals()) != 0 {
		t.Fatalf("expected no API keys by default")
	}
}

func TestParseEnvAndFlags(t *testing.T) {
	t.Setenv("FAIRTICKET_PORT", "9090")
	t.Setenv("FAIRTICKET_API_KEYS", "k1=ops,k2= alice ,k3=")
	t.Setenv("FAIRTICKET_BATCH_MAX_WAIT", "2s")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected env port 9090, got %s", cfg.Port)
	}
	keys := cfg.APIKeyPrincipals()
	want := map[string]domain.Address{"k1": "ops", "k2": "alice"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for k, addr := range want {
		if keys[k] != addr {
			t.Fatalf("key %q: expected %q, got %q", k, addr, keys[k])
		}
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse([]string{"--port", "7070", "--log-level", "debug", "--api-key", "k9=carol"}); err != nil {
		t.Fatalf("flags: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("expected flag to override port, got %s", cfg.Port)
	}
	if cfg.BatchMaxWait != 2*time.Second {
		t.Fatalf("expected env batch wait to survive, got %s", cfg.BatchMaxWait)
	}
	if got := cfg.APIKeyPrincipals(); len(got) != 1 || got["k9"] != "carol" {
		t.Fatalf("expected flag keys to replace env keys, got %v", got)
	}
	if cfg.SlogLevel().String() != "DEBUG" {
		t.Fatalf("expected debug level, got %s", cfg.SlogLevel())
	}
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(dir, "policy.yaml")
		body := `owner: ops
policy:
  max_resale_percent: 120
  creation_fee: "2.5"
deposits:
  alice: "1000"
`
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		pf, err := LoadPolicyFile(path)
		if err != nil {
			t.Fatalf("LoadPolicyFile: %v", err)
		}
		if pf.Owner != "ops" {
			t.Fatalf("expected owner ops, got %s", pf.Owner)
		}
		if pf.Policy.MaxResalePercent != 120 {
			t.Fatalf("expected max resale 120, got %d", pf.Policy.MaxResalePercent)
		}
		if !pf.Policy.CreationFee.Equal(decimal.RequireFromString("2.5")) {
			t.Fatalf("expected creation fee 2.5, got %s", pf.Policy.CreationFee)
		}
		if pf.Policy.DefaultOrganizerFeePercent != domain.DefaultOrganizerFeePercent {
			t.Fatalf("expected default fee to survive, got %d", pf.Policy.DefaultOrganizerFeePercent)
		}
		if pf.Deposits["alice"] != "1000" {
			t.Fatalf("expected alice deposit, got %v", pf.Deposits)
		}
	})

	t.Run("out of bounds policy rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("policy:\n  max_resale_percent: 90\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadPolicyFile(path); err == nil {
			t.Fatalf("expected error for resale ceiling below 100")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadPolicyFile(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Fatalf("expected error for missing file")
		}
	})
}
