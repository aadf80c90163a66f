package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("CLARA_PG_DSN", "postgres://real:secret@db:5432/clara")

	path := filepath.Join(t.TempDir(), "clara.json")
	data := `{
		"server": {"port": 8080, "log_level": "debug"},
		"database": {
			"postgres": {"dsn": "${CLARA_PG_DSN}"},
			"redis": {"url": "${CLARA_REDIS_URL:redis://localhost:6379/0}"},
			"qdrant": {"host": "localhost", "port": 6334, "collection": "memories"}
		},
		"memory": {"agent_id": "clara", "working_cap": 50, "semantic_timeout_ms": 2000}
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Postgres.DSN != "postgres://real:secret@db:5432/clara" {
		t.Errorf("dsn = %q, env var not substituted", cfg.Database.Postgres.DSN)
	}
	if cfg.Database.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("redis url = %q, default not applied", cfg.Database.Redis.URL)
	}
	if cfg.Memory.SemanticTimeout() != 2*time.Second {
		t.Errorf("semantic timeout = %v, want 2s", cfg.Memory.SemanticTimeout())
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does/not/exist.json"); err == nil {
		t.Error("expected error for missing config file")
	}
}
