package config

import "testing"

type testConfig struct {
	Path  string `env:"WYRD_TEST_PATH" envDefault:"wyrd.db"`
	Limit int    `env:"WYRD_TEST_LIMIT" envDefault:"4"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("ParseEnv returned error: %v", err)
	}
	if cfg.Path != "wyrd.db" {
		t.Fatalf("expected default path, got %q", cfg.Path)
	}
	if cfg.Limit != 4 {
		t.Fatalf("expected default limit 4, got %d", cfg.Limit)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("WYRD_TEST_PATH", "/tmp/other.db")
	t.Setenv("WYRD_TEST_LIMIT", "9")

	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("ParseEnv returned error: %v", err)
	}
	if cfg.Path != "/tmp/other.db" {
		t.Fatalf("expected override path, got %q", cfg.Path)
	}
	if cfg.Limit != 9 {
		t.Fatalf("expected override limit 9, got %d", cfg.Limit)
	}
}
