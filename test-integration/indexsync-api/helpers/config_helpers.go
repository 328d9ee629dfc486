package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onsi/gomega"
)

// Source names a collection feeding an index
type Source struct {
	Database   string
	Collection string
}

// ConfigOptions holds the settings written by WriteConfigYAML
type ConfigOptions struct {
	// Storage is "memory" or "mongo"
	Storage  string
	MongoURI string

	// LockBackend is one of local, none, redis or postgres
	LockBackend string
	RedisAddr   string
	Postgres    *PostgresOptions

	RebuildInterval string
	StatusDir       string

	// Indexes maps index names to their sources
	Indexes map[string][]Source
}

// PostgresOptions describes the database used by the postgres lock backend
type PostgresOptions struct {
	Host         string
	Port         int
	User         string
	Database     string
	PasswordFile string
}

// WriteConfigYAML writes a configuration file into dir and returns its path
func WriteConfigYAML(dir string, opts ConfigOptions) string {
	if opts.Storage == "" {
		opts.Storage = "memory"
	}
	if opts.LockBackend == "" {
		opts.LockBackend = "local"
	}
	if opts.RebuildInterval == "" {
		opts.RebuildInterval = "1h"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "storage: %s\n", opts.Storage)
	if opts.MongoURI != "" {
		fmt.Fprintf(&b, "mongo:\n  uri: %q\n  connectTimeout: 5s\n", opts.MongoURI)
	}

	// the address is never dialled; tests inject the search client
	b.WriteString("elasticsearch:\n  url: http://search.invalid:9200\n")

	fmt.Fprintf(&b, "lock:\n  backend: %s\n  waitTimeout: 2s\n", opts.LockBackend)
	if opts.RedisAddr != "" {
		fmt.Fprintf(&b, "  redis:\n    address: %s\n", opts.RedisAddr)
	}
	if pg := opts.Postgres; pg != nil {
		fmt.Fprintf(&b, "database:\n  host: %s\n  port: %d\n  user: %s\n  database: %s\n  passwordFile: %s\n  sslMode: disable\n",
			pg.Host, pg.Port, pg.User, pg.Database, pg.PasswordFile)
	}

	fmt.Fprintf(&b, "indexing:\n  workers: 4\n  rebuildInterval: %s\n", opts.RebuildInterval)
	if opts.StatusDir != "" {
		fmt.Fprintf(&b, "  statusDir: %s\n", opts.StatusDir)
	}

	b.WriteString("indexes:\n")
	for name, sources := range opts.Indexes {
		fmt.Fprintf(&b, "  - name: %s\n    sources:\n", name)
		for _, src := range sources {
			fmt.Fprintf(&b, "      - database: %s\n        collection: %s\n", src.Database, src.Collection)
		}
	}

	configPath := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(configPath, []byte(b.String()), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return configPath
}

// WriteSecret writes a password file into dir and returns its path
func WriteSecret(dir, name, value string) string {
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte(value), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return path
}
