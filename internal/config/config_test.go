package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Collections = []CollectionConfig{{Name: "patients"}, {Name: "visits"}}
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "mongodb://localhost:27017/test", cfg.URI)
	assert.Equal(t, "mongodb://localhost:27017/local", cfg.OplogURI)
	assert.Equal(t, "oplog.rs", cfg.OplogCollection)
	assert.Equal(t, "history_", cfg.Prefix)
	assert.Equal(t, StoreMongo, cfg.Store)
	assert.Equal(t, 64, cfg.ChannelCapacity)
	assert.Empty(t, cfg.Collections)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
uri: mongodb://db.internal:27017/clinic
collections:
  - name: patients
  - name: visits
store: sqlite
sqlite_path: /var/lib/history.db
channel_capacity: 8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db.internal:27017/clinic", cfg.URI)
	assert.Equal(t, []string{"patients", "visits"}, cfg.Names())
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "/var/lib/history.db", cfg.SQLitePath)
	assert.Equal(t, 8, cfg.ChannelCapacity)

	// unspecified keys keep their defaults
	assert.Equal(t, "mongodb://localhost:27017/local", cfg.OplogURI)
	assert.Equal(t, "history_", cfg.Prefix)

	db, err := cfg.Database()
	require.NoError(t, err)
	assert.Equal(t, "clinic", db)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("colections:\n  - name: patients\n"))

	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestMerge_OnlyNonEmptyValues(t *testing.T) {
	cfg := validConfig()

	cfg.Merge(Config{Prefix: "versions_", ChannelCapacity: 0})

	assert.Equal(t, "versions_", cfg.Prefix)
	assert.Equal(t, 64, cfg.ChannelCapacity)
	assert.Equal(t, "mongodb://localhost:27017/test", cfg.URI)
	assert.Len(t, cfg.Collections, 2)
}

func TestMerge_CopiesCollections(t *testing.T) {
	cfg := Default()
	override := Config{Collections: []CollectionConfig{{Name: "patients"}}}

	cfg.Merge(override)
	override.Collections[0].Name = "mutated"

	assert.Equal(t, []string{"patients"}, cfg.Names())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no database in uri", func(c *Config) { c.URI = "mongodb://localhost:27017" }, "uri"},
		{"no oplog database", func(c *Config) { c.OplogURI = "mongodb://localhost:27017/" }, "oplog_uri"},
		{"oplog file skips oplog uri", func(c *Config) { c.OplogURI = ""; c.OplogFile = "oplog.bson" }, ""},
		{"no collections", func(c *Config) { c.Collections = nil }, "at least one collection"},
		{"empty name", func(c *Config) { c.Collections[1].Name = "" }, "collections[1]"},
		{"duplicate", func(c *Config) { c.Collections[1].Name = "patients" }, "duplicate"},
		{"system collection", func(c *Config) { c.Collections[0].Name = "system.views" }, "cannot be versioned"},
		{"history versioned", func(c *Config) { c.Collections[1].Name = "history_patients" }, "itself versioned"},
		{"empty prefix", func(c *Config) { c.Prefix = "" }, "prefix"},
		{"bad store", func(c *Config) { c.Store = "redis" }, "invalid store"},
		{"sqlite without path", func(c *Config) { c.Store = StoreSQLite; c.SQLitePath = "" }, "sqlite_path"},
		{"zero capacity", func(c *Config) { c.ChannelCapacity = 0 }, "channel_capacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
