// Package config loads the versioning engine configuration.
//
// A configuration starts from Default(), is overlaid with an optional YAML
// file and then with command-line overrides. Only non-empty values replace
// what is already set, so a file may name just the keys it changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mongoversioning/internal/oplog"
)

// Store backends.
const (
	StoreMongo  = "mongo"
	StoreSQLite = "sqlite"
)

// Config holds all configuration of one engine process.
type Config struct {
	// URI is the source database; its path names the versioned database.
	// History collections are written there when Store is "mongo".
	URI string `yaml:"uri"`

	// OplogURI is the database holding the oplog, normally "local".
	OplogURI string `yaml:"oplog_uri"`

	// OplogCollection is the oplog collection inside OplogURI's database.
	OplogCollection string `yaml:"oplog_collection"`

	// OplogFile replays a mongodump oplog.bson file instead of tailing
	// OplogURI.
	OplogFile string `yaml:"oplog_file,omitempty"`

	// Collections are the versioned source collections, in query order.
	Collections []CollectionConfig `yaml:"collections"`

	// Prefix is prepended to a collection name to form its history collection.
	Prefix string `yaml:"prefix"`

	// Store selects the version store backend: "mongo" or "sqlite".
	Store string `yaml:"store"`

	// SQLitePath is the history database file when Store is "sqlite".
	SQLitePath string `yaml:"sqlite_path,omitempty"`

	// ChannelCapacity is the buffer size of each collection channel.
	ChannelCapacity int `yaml:"channel_capacity"`

	// MetricsAddr serves /health, /metrics and /channels when non-empty.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// CollectionConfig names one versioned collection.
type CollectionConfig struct {
	Name string `yaml:"name"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		URI:             "mongodb://localhost:27017/test",
		OplogURI:        "mongodb://localhost:27017/local",
		OplogCollection: oplog.DefaultCollection,
		Prefix:          "history_",
		Store:           StoreMongo,
		SQLitePath:      "history.db",
		ChannelCapacity: 64,
	}
}

// Load reads a YAML file over Default(). Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default(). Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var file Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := Default()
	cfg.Merge(file)
	return cfg, nil
}

// Merge overlays the non-empty values of o onto c.
func (c *Config) Merge(o Config) {
	if o.URI != "" {
		c.URI = o.URI
	}
	if o.OplogURI != "" {
		c.OplogURI = o.OplogURI
	}
	if o.OplogCollection != "" {
		c.OplogCollection = o.OplogCollection
	}
	if o.OplogFile != "" {
		c.OplogFile = o.OplogFile
	}
	if len(o.Collections) > 0 {
		c.Collections = append([]CollectionConfig(nil), o.Collections...)
	}
	if o.Prefix != "" {
		c.Prefix = o.Prefix
	}
	if o.Store != "" {
		c.Store = o.Store
	}
	if o.SQLitePath != "" {
		c.SQLitePath = o.SQLitePath
	}
	if o.ChannelCapacity > 0 {
		c.ChannelCapacity = o.ChannelCapacity
	}
	if o.MetricsAddr != "" {
		c.MetricsAddr = o.MetricsAddr
	}
}

// Names returns the collection names in configured order.
func (c Config) Names() []string {
	names := make([]string, len(c.Collections))
	for i, col := range c.Collections {
		names[i] = col.Name
	}
	return names
}

// Database returns the versioned database named by URI.
func (c Config) Database() (string, error) {
	return oplog.DatabaseFromURI(c.URI)
}

// Validate checks that the configuration can start an engine.
func (c Config) Validate() error {
	if _, err := c.Database(); err != nil {
		return fmt.Errorf("uri: %w", err)
	}
	if c.OplogFile == "" {
		if _, err := oplog.DatabaseFromURI(c.OplogURI); err != nil {
			return fmt.Errorf("oplog_uri: %w", err)
		}
		if c.OplogCollection == "" {
			return fmt.Errorf("oplog_collection is required")
		}
	}

	if len(c.Collections) == 0 {
		return fmt.Errorf("at least one collection is required")
	}
	seen := make(map[string]bool, len(c.Collections))
	for i, col := range c.Collections {
		if col.Name == "" {
			return fmt.Errorf("collections[%d]: name is required", i)
		}
		if strings.HasPrefix(col.Name, "system.") || strings.Contains(col.Name, "$") {
			return fmt.Errorf("collections[%d]: %q cannot be versioned", i, col.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("collections[%d]: duplicate collection %q", i, col.Name)
		}
		seen[col.Name] = true
	}

	if c.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	for _, col := range c.Collections {
		if seen[c.Prefix+col.Name] {
			return fmt.Errorf("history collection %q is itself versioned", c.Prefix+col.Name)
		}
	}

	switch c.Store {
	case StoreMongo:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("invalid store %q: must be %q or %q", c.Store, StoreMongo, StoreSQLite)
	}

	if c.ChannelCapacity < 1 {
		return fmt.Errorf("channel_capacity must be positive, got %d", c.ChannelCapacity)
	}
	return nil
}
