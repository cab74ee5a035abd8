package config

import (
	"strings"
	"testing"
)

// validCfg returns a fully-valid Config for mutation testing.
func validCfg() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "/tmp/rulings.db",
			BoltPath:   "/tmp/rulings.bolt",
		},
		Lookup: LookupConfig{
			Limit:           5,
			SuggestMax:      5,
			SimilarityFloor: 0.55,
			Metric:          "ratio",
		},
		Moderation: ModerationConfig{RetentionDays: 30},
		MCP:        MCPConfig{Budget: 2000},
	}
}

func TestUAT_Validate_UnknownDriver(t *testing.T) {
	cfg := validCfg()
	cfg.Store.Driver = "mongo"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for store.driver = mongo")
	}
	if !strings.Contains(err.Error(), "store.driver") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUAT_Validate_PostgresWithoutDSN(t *testing.T) {
	cfg := validCfg()
	cfg.Store.Driver = DriverPostgres
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
	if !strings.Contains(err.Error(), "postgres_dsn") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUAT_Validate_EmptySQLitePath(t *testing.T) {
	cfg := validCfg()
	cfg.Store.SQLitePath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty store.sqlite_path")
	}
}

func TestUAT_Validate_EmptyBoltPath(t *testing.T) {
	cfg := validCfg()
	cfg.Store.Driver = DriverBolt
	cfg.Store.BoltPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty store.bolt_path")
	}
}

func TestUAT_Validate_MemoryNeedsNoPath(t *testing.T) {
	cfg := validCfg()
	cfg.Store = StoreConfig{Driver: DriverMemory}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory driver should pass, got: %v", err)
	}
}

func TestUAT_Validate_LimitZero(t *testing.T) {
	cfg := validCfg()
	cfg.Lookup.Limit = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for Limit = 0")
	}
	if !strings.Contains(err.Error(), "lookup.limit") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUAT_Validate_Floor1_5(t *testing.T) {
	cfg := validCfg()
	cfg.Lookup.SimilarityFloor = 1.5
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for SimilarityFloor = 1.5")
	}
	if !strings.Contains(err.Error(), "similarity_floor") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUAT_Validate_UnknownMetric(t *testing.T) {
	cfg := validCfg()
	cfg.Lookup.Metric = "cosine"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for metric = cosine")
	}
}

func TestUAT_Validate_NegativeRetention(t *testing.T) {
	cfg := validCfg()
	cfg.Moderation.RetentionDays = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for RetentionDays = -1")
	}
}

func TestUAT_Validate_BudgetZero(t *testing.T) {
	cfg := validCfg()
	cfg.MCP.Budget = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for Budget = 0")
	}
}

func TestUAT_Validate_ValidConfigPasses(t *testing.T) {
	cfg := validCfg()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config should pass, got: %v", err)
	}
}
