package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the process configuration, read from the environment with an
// optional .env file layered underneath.
type Config struct {
	DiscordToken string   `env:"DISCORD_TOKEN"`
	ClientID     string   `env:"CLIENT_ID"`
	PublicSlash  bool     `env:"PUBLIC_SLASH" envDefault:"true"`
	DevGuild     string   `env:"DEV_GUILD"`
	Developers   []string `env:"DEVELOPERS" envSeparator:","`

	CommandsDir    string `env:"COMMANDS_DIR" envDefault:"commands"`
	ContextMenuDir string `env:"CONTEXTMENU_DIR" envDefault:"contextmenu"`
	WatchCommands  bool   `env:"WATCH_COMMANDS" envDefault:"false"`

	ShardCount       int `env:"SHARD_COUNT" envDefault:"0"`
	ShardsPerCluster int `env:"SHARDS_PER_CLUSTER" envDefault:"4"`
	ClusterID        int `env:"CLUSTER_ID" envDefault:"0"`

	ClusterListen  string        `env:"CLUSTER_LISTEN" envDefault:":7400"`
	ClusterPeers   []string      `env:"CLUSTER_PEERS" envSeparator:","`
	ClusterToken   string        `env:"CLUSTER_TOKEN"`
	ClusterTimeout time.Duration `env:"CLUSTER_TIMEOUT" envDefault:"3s"`

	PresenceInterval time.Duration `env:"PRESENCE_INTERVAL" envDefault:"1m"`

	BurstMax    int           `env:"COOLDOWN_BURST_MAX" envDefault:"6"`
	BurstWindow time.Duration `env:"COOLDOWN_BURST_WINDOW" envDefault:"10s"`

	StoragePath string `env:"STORAGE_PATH" envDefault:"datastore.json"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"30"`

	OTelEndpoint    string `env:"OTEL_ENDPOINT"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"kupumalam"`
}

// Peer is one other cluster process reachable over HTTP.
type Peer struct {
	ID  string
	URL string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is not set"))
	}
	if c.ShardsPerCluster < 1 {
		errs = append(errs, errors.New("SHARDS_PER_CLUSTER must be at least 1"))
	}
	if c.ClusterID < 0 {
		errs = append(errs, errors.New("CLUSTER_ID must not be negative"))
	}
	if c.BurstMax < 1 {
		errs = append(errs, errors.New("COOLDOWN_BURST_MAX must be at least 1"))
	}
	if c.BurstWindow <= 0 {
		errs = append(errs, errors.New("COOLDOWN_BURST_WINDOW must be positive"))
	}
	if _, err := c.Peers(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Peers parses CLUSTER_PEERS entries of the form id=url.
func (c *Config) Peers() ([]Peer, error) {
	peers := make([]Peer, 0, len(c.ClusterPeers))
	for _, raw := range c.ClusterPeers {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, url, ok := strings.Cut(raw, "=")
		if !ok || id == "" || url == "" {
			return nil, fmt.Errorf("CLUSTER_PEERS entry %q: want id=url", raw)
		}
		peers = append(peers, Peer{ID: strings.TrimSpace(id), URL: strings.TrimRight(strings.TrimSpace(url), "/")})
	}
	return peers, nil
}

// IsDeveloper reports whether userID is on the developer allow-list.
func (c *Config) IsDeveloper(userID string) bool {
	return slices.Contains(c.Developers, userID)
}

// Shards returns the shard IDs owned by this cluster out of total.
func (c *Config) Shards(total int) []int {
	first := c.ClusterID * c.ShardsPerCluster
	var ids []int
	for id := first; id < first+c.ShardsPerCluster && id < total; id++ {
		ids = append(ids, id)
	}
	return ids
}
