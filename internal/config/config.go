package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the SeqDispatch producer. Everything
// is loaded once at process start; nothing is read from the environment
// after that.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Scheduler  SchedulerConfig
	Delegation DelegationConfig
	Search     SearchConfig
	Admin      AdminConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional: with an empty URL the producer runs without the
// job-status cache and submission rate limiting.
type RedisConfig struct {
	URL string
}

type SchedulerConfig struct {
	Interval time.Duration
}

type DelegationConfig struct {
	Timeout time.Duration
}

type SearchConfig struct {
	Databases   []string
	QueryMinLen int
	QueryMaxLen int
}

// AdminConfig guards the admin routes. TokenHash is a bcrypt hash of the
// admin bearer token; with an empty hash the admin routes reject every
// request.
type AdminConfig struct {
	TokenHash string
}

// ConsumerConfig holds all configuration for a consumer worker process.
type ConsumerConfig struct {
	Host     string
	Port     int
	Database DatabaseConfig
	Tool     ToolConfig
}

// ToolConfig describes the external search tools a consumer wraps.
type ToolConfig struct {
	NhmmerBin   string
	CmscanBin   string
	SequenceDir string
	CMFile      string
	WorkDir     string
	MaxRunTime  time.Duration
}

var defaultDatabases = []string{
	"ena", "greengenes", "lncrnadb", "mirbase", "pdbe", "pombase",
	"rdp", "refseq", "rfam", "rgd", "sgd", "snopy", "srpdb", "tair", "wormbase",
}

// Load reads the producer configuration from environment variables and
// returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SEQD_PORT", 8080),
			Env:  envString("SEQD_ENV", "development"),
		},
		Database: loadDatabase(),
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scheduler: SchedulerConfig{
			Interval: envDuration("SEQD_SCHEDULER_INTERVAL", 4*time.Second),
		},
		Delegation: DelegationConfig{
			Timeout: envDuration("SEQD_DELEGATION_TIMEOUT", 10*time.Second),
		},
		Search: SearchConfig{
			Databases:   envList("SEQD_DATABASES", defaultDatabases),
			QueryMinLen: envInt("SEQD_QUERY_MIN_LEN", 10),
			QueryMaxLen: envInt("SEQD_QUERY_MAX_LEN", 7000),
		},
		Admin: AdminConfig{
			TokenHash: os.Getenv("SEQD_ADMIN_TOKEN_HASH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConsumer reads the consumer configuration from environment variables
// and returns a validated ConsumerConfig.
func LoadConsumer() (*ConsumerConfig, error) {
	cfg := &ConsumerConfig{
		Host:     envString("SEQD_CONSUMER_HOST", defaultHost()),
		Port:     envInt("SEQD_CONSUMER_PORT", 8090),
		Database: loadDatabase(),
		Tool: ToolConfig{
			NhmmerBin:   envString("SEQD_NHMMER_BIN", "nhmmer"),
			CmscanBin:   envString("SEQD_CMSCAN_BIN", "cmscan"),
			SequenceDir: envString("SEQD_SEQUENCE_DIR", "/srv/sequences"),
			CMFile:      envString("SEQD_CM_FILE", "/srv/cms/rfam.cm"),
			WorkDir:     envString("SEQD_WORK_DIR", os.TempDir()),
			MaxRunTime:  envDuration("SEQD_MAX_RUN_TIME", 90*time.Minute),
		},
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("SEQD_CONSUMER_HOST is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SEQD_CONSUMER_PORT must be a valid port, got %d", cfg.Port)
	}
	if cfg.Tool.MaxRunTime <= 0 {
		return nil, fmt.Errorf("SEQD_MAX_RUN_TIME must be positive")
	}
	return cfg, nil
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		URL:             os.Getenv("DATABASE_URL"),
		MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("SEQD_SCHEDULER_INTERVAL must be positive")
	}
	if c.Delegation.Timeout <= 0 {
		return fmt.Errorf("SEQD_DELEGATION_TIMEOUT must be positive")
	}
	if len(c.Search.Databases) == 0 {
		return fmt.Errorf("SEQD_DATABASES must name at least one target database")
	}
	if c.Search.QueryMinLen <= 0 || c.Search.QueryMaxLen < c.Search.QueryMinLen {
		return fmt.Errorf("invalid query length bounds [%d, %d]",
			c.Search.QueryMinLen, c.Search.QueryMaxLen)
	}
	return nil
}

// KnownDatabase reports whether name is a configured target database.
func (c *SearchConfig) KnownDatabase(name string) bool {
	for _, db := range c.Databases {
		if db == name {
			return true
		}
	}
	return false
}

func defaultHost() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "localhost"
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
