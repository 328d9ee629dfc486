// Package config provides configuration loading and management for the index sync server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mongoadmin/indexsync/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the server
const EnvPrefix = "INDEXSYNC"

const (
	// StorageMongo keeps tracked documents in MongoDB
	StorageMongo = "mongo"

	// StorageMemory keeps tracked documents in process memory
	StorageMemory = "memory"
)

const (
	// LockBackendRedis uses SET NX PX keys in Redis
	LockBackendRedis = "redis"

	// LockBackendPostgres uses session advisory locks in PostgreSQL
	LockBackendPostgres = "postgres"

	// LockBackendLocal uses in-process locks, only safe for a single replica
	LockBackendLocal = "local"

	// LockBackendNone disables locking; every acquisition fails
	LockBackendNone = "none"
)

const (
	defaultLockWaitTimeout      = 10 * time.Second
	defaultLockHoldTimeout      = 30 * time.Second
	defaultWorkers              = 8
	defaultRebuildInterval      = 2 * time.Minute
	defaultElasticsearchTimeout = 30 * time.Second
	defaultMongoConnectTimeout  = 10 * time.Second
	defaultMongoConnectAttempts = 5
)

// indexNamePattern accepts names that are valid Elasticsearch index names
var indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Storage selects where tracked documents live: "mongo" (default) or "memory"
	Storage string `yaml:"storage,omitempty"`

	Mongo         *MongoConfig        `yaml:"mongo,omitempty"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Lock          LockConfig          `yaml:"lock,omitempty"`
	Indexing      IndexingConfig      `yaml:"indexing,omitempty"`

	// Indexes maps each logical search index to the collections feeding it
	Indexes []IndexConfig `yaml:"indexes"`

	// Database is only required by the postgres lock backend
	Database *DatabaseConfig `yaml:"database,omitempty"`

	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// MongoConfig defines the document storage connection
type MongoConfig struct {
	// URI is the MongoDB connection string. INDEXSYNC_MONGO_URI takes precedence.
	URI string `yaml:"uri,omitempty"`

	// AppName is reported to the server for connection attribution
	AppName string `yaml:"appName,omitempty"`

	// ConnectTimeout bounds each connection attempt (e.g., "10s")
	ConnectTimeout string `yaml:"connectTimeout,omitempty"`

	// MaxConnectAttempts is the number of attempts before giving up on startup
	MaxConnectAttempts int `yaml:"maxConnectAttempts,omitempty"`
}

// ElasticsearchConfig defines the search engine connection
type ElasticsearchConfig struct {
	// URL is the base URL of the cluster, e.g. http://localhost:9200
	URL string `yaml:"url"`

	Username string `yaml:"username,omitempty"`

	// PasswordFile is the path to a file containing the password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Timeout bounds every request sent to the cluster (e.g., "30s")
	Timeout string `yaml:"timeout,omitempty"`
}

// LockConfig defines the per-document lock policy
type LockConfig struct {
	// Backend is one of redis, postgres, local or none
	Backend string `yaml:"backend,omitempty"`

	WaitTimeout string `yaml:"waitTimeout,omitempty"`
	HoldTimeout string `yaml:"holdTimeout,omitempty"`

	// ContinueOnFailure runs the guarded work unlocked when the lock cannot be
	// acquired. Defaults to true.
	ContinueOnFailure *bool `yaml:"continueOnFailure,omitempty"`

	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig defines the Redis lock backend connection
type RedisConfig struct {
	Address string `yaml:"address"`

	// PasswordFile is the path to a file containing the password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	DB int `yaml:"db,omitempty"`

	// KeyPrefix is prepended to every lock key
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

// IndexingConfig defines the asynchronous indexing workers
type IndexingConfig struct {
	// Workers bounds the number of indexing jobs running at once
	Workers int `yaml:"workers,omitempty"`

	// RebuildInterval is how often pending documents are re-indexed (e.g., "2m").
	// "0" disables the background rebuild.
	RebuildInterval string `yaml:"rebuildInterval,omitempty"`

	// RebuildMaxDocs bounds each background rebuild pass; 0 means unbounded
	RebuildMaxDocs int64 `yaml:"rebuildMaxDocs,omitempty"`

	// StatusDir keeps background rebuild statuses across restarts. Statuses
	// live in memory when empty.
	StatusDir string `yaml:"statusDir,omitempty"`
}

// IndexConfig defines one logical search index
type IndexConfig struct {
	Name    string         `yaml:"name"`
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig identifies a collection feeding an index
type SourceConfig struct {
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// String returns database/collection
func (s SourceConfig) String() string {
	return s.Database + "/" + s.Collection
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// readSecret returns the content of file when set, else the named env variable
func readSecret(file, env string) (string, bool, error) {
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", false, fmt.Errorf("failed to read password from file %s: %w", file, err)
		}
		return strings.TrimSpace(string(data)), true, nil
	}
	if v := os.Getenv(env); v != "" {
		return v, true, nil
	}
	return "", false, nil
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from INDEXSYNC_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	password, ok, err := readSecret(d.PasswordFile, EnvPrefix+"_DATABASE_PASSWORD")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf(
			"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
		)
	}
	return password, nil
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// GetURI returns the MongoDB connection string, preferring INDEXSYNC_MONGO_URI
func (m *MongoConfig) GetURI() string {
	if v := os.Getenv(EnvPrefix + "_MONGO_URI"); v != "" {
		return v
	}
	if m == nil {
		return ""
	}
	return m.URI
}

// GetConnectTimeout returns the per-attempt connect timeout
func (m *MongoConfig) GetConnectTimeout() time.Duration {
	if m == nil || m.ConnectTimeout == "" {
		return defaultMongoConnectTimeout
	}
	d, err := time.ParseDuration(m.ConnectTimeout)
	if err != nil {
		return defaultMongoConnectTimeout
	}
	return d
}

// GetMaxConnectAttempts returns the number of startup connection attempts
func (m *MongoConfig) GetMaxConnectAttempts() int {
	if m == nil || m.MaxConnectAttempts <= 0 {
		return defaultMongoConnectAttempts
	}
	return m.MaxConnectAttempts
}

// GetPassword returns the cluster password from PasswordFile or
// INDEXSYNC_ES_PASSWORD. An empty password is allowed.
func (e *ElasticsearchConfig) GetPassword() (string, error) {
	password, _, err := readSecret(e.PasswordFile, EnvPrefix+"_ES_PASSWORD")
	return password, err
}

// GetTimeout returns the request timeout
func (e *ElasticsearchConfig) GetTimeout() time.Duration {
	return durationOr(e.Timeout, defaultElasticsearchTimeout)
}

// GetPassword returns the Redis password from PasswordFile or INDEXSYNC_REDIS_PASSWORD
func (r *RedisConfig) GetPassword() (string, error) {
	password, _, err := readSecret(r.PasswordFile, EnvPrefix+"_REDIS_PASSWORD")
	return password, err
}

// GetBackend returns the lock backend, defaulting to redis
func (l *LockConfig) GetBackend() string {
	if l.Backend == "" {
		return LockBackendRedis
	}
	return l.Backend
}

// GetWaitTimeout returns how long an acquisition may wait
func (l *LockConfig) GetWaitTimeout() time.Duration {
	return durationOr(l.WaitTimeout, defaultLockWaitTimeout)
}

// GetHoldTimeout returns the lease of an acquired lock
func (l *LockConfig) GetHoldTimeout() time.Duration {
	return durationOr(l.HoldTimeout, defaultLockHoldTimeout)
}

// GetContinueOnFailure returns the degradation policy, true unless disabled
func (l *LockConfig) GetContinueOnFailure() bool {
	if l.ContinueOnFailure == nil {
		return true
	}
	return *l.ContinueOnFailure
}

// GetWorkers returns the worker pool size
func (i *IndexingConfig) GetWorkers() int {
	if i.Workers <= 0 {
		return defaultWorkers
	}
	return i.Workers
}

// GetRebuildInterval returns the background rebuild interval; zero disables it
func (i *IndexingConfig) GetRebuildInterval() time.Duration {
	return durationOr(i.RebuildInterval, defaultRebuildInterval)
}

// GetStorage returns the storage mode, defaulting to mongo
func (c *Config) GetStorage() string {
	if c.Storage == "" {
		return StorageMongo
	}
	return c.Storage
}

// GetIndex returns the configuration of the named index
func (c *Config) GetIndex(name string) (*IndexConfig, bool) {
	for i := range c.Indexes {
		if c.Indexes[i].Name == name {
			return &c.Indexes[i], true
		}
	}
	return nil, false
}

// IndexNames returns the configured index names in declaration order
func (c *Config) IndexNames() []string {
	names := make([]string, 0, len(c.Indexes))
	for _, idx := range c.Indexes {
		names = append(names, idx.Name)
	}
	return names
}

// HasSource reports whether the index is fed by database/collection
func (i *IndexConfig) HasSource(database, collection string) bool {
	for _, s := range i.Sources {
		if s.Database == database && s.Collection == collection {
			return true
		}
	}
	return false
}

func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate performs validation on the configuration
// Validate checks the configuration for missing or inconsistent settings
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch c.GetStorage() {
	case StorageMongo, StorageMemory:
	default:
		return fmt.Errorf("storage must be %s or %s, got %s", StorageMongo, StorageMemory, c.Storage)
	}

	if err := validateElasticsearch(&c.Elasticsearch); err != nil {
		return err
	}
	if err := c.validateLock(); err != nil {
		return err
	}
	if err := validateDurations(map[string]string{
		"mongo.connectTimeout":     mongoConnectTimeout(c.Mongo),
		"indexing.rebuildInterval": c.Indexing.RebuildInterval,
	}); err != nil {
		return err
	}
	if c.Indexing.RebuildMaxDocs < 0 {
		return fmt.Errorf("indexing.rebuildMaxDocs must not be negative")
	}

	if len(c.Indexes) == 0 {
		return fmt.Errorf("at least one index must be configured")
	}

	names := make(map[string]bool)
	for i, idx := range c.Indexes {
		if idx.Name == "" {
			return fmt.Errorf("indexes[%d]: name is required", i)
		}
		if !indexNamePattern.MatchString(idx.Name) {
			return fmt.Errorf("indexes[%d]: invalid index name '%s'", i, idx.Name)
		}
		if names[idx.Name] {
			return fmt.Errorf("indexes[%d]: duplicate index name '%s'", i, idx.Name)
		}
		names[idx.Name] = true

		if err := validateSources(idx, i); err != nil {
			return err
		}
	}

	return c.Telemetry.Validate()
}

func mongoConnectTimeout(m *MongoConfig) string {
	if m == nil {
		return ""
	}
	return m.ConnectTimeout
}

func validateElasticsearch(es *ElasticsearchConfig) error {
	if es.URL == "" {
		return fmt.Errorf("elasticsearch.url is required")
	}
	u, err := url.Parse(es.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("elasticsearch.url must be an absolute URL, got %s", es.URL)
	}
	return validateDurations(map[string]string{"elasticsearch.timeout": es.Timeout})
}

func (c *Config) validateLock() error {
	switch c.Lock.GetBackend() {
	case LockBackendRedis:
		if c.Lock.Redis == nil || c.Lock.Redis.Address == "" {
			return fmt.Errorf("lock.redis.address is required for the redis lock backend")
		}
	case LockBackendPostgres:
		if c.Database == nil {
			return fmt.Errorf("database configuration is required for the postgres lock backend")
		}
	case LockBackendLocal, LockBackendNone:
	default:
		return fmt.Errorf("lock.backend must be one of redis, postgres, local or none, got %s", c.Lock.Backend)
	}

	if err := validateDurations(map[string]string{
		"lock.waitTimeout": c.Lock.WaitTimeout,
		"lock.holdTimeout": c.Lock.HoldTimeout,
	}); err != nil {
		return err
	}
	if c.Lock.GetHoldTimeout() <= 0 {
		return fmt.Errorf("lock.holdTimeout must be positive")
	}
	return nil
}

func validateSources(idx IndexConfig, i int) error {
	prefix := fmt.Sprintf("indexes[%d] (%s)", i, idx.Name)
	if len(idx.Sources) == 0 {
		return fmt.Errorf("%s: at least one source is required", prefix)
	}
	seen := make(map[string]bool)
	for j, src := range idx.Sources {
		if src.Database == "" || src.Collection == "" {
			return fmt.Errorf("%s: sources[%d] requires database and collection", prefix, j)
		}
		if strings.HasPrefix(src.Collection, "__") {
			return fmt.Errorf("%s: sources[%d]: collection %s is reserved", prefix, j, src.Collection)
		}
		if seen[src.String()] {
			return fmt.Errorf("%s: duplicate source %s", prefix, src)
		}
		seen[src.String()] = true
	}
	return nil
}

func validateDurations(values map[string]string) error {
	for field, value := range values {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a valid duration (e.g., '30s', '2m'): %w", field, err)
		}
	}
	return nil
}
