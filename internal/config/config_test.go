package config

import "testing"

func TestLoad_PostgresURLHasNoDefault(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// An unset DATABASE_URL must stay empty so main can fall back to the
	// in-process store.
	if cfg.Postgres.URL != "" {
		t.Errorf("expected empty postgres url, got %q", cfg.Postgres.URL)
	}
}

func TestLoad_PostgresURLFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db:5432/app")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Postgres.URL != "postgres://db:5432/app" {
		t.Errorf("unexpected postgres url %q", cfg.Postgres.URL)
	}
}
