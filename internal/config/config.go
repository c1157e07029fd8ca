package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	Worker WorkerConfig `mapstructure:"worker"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Store  StoreConfig  `mapstructure:"store"`
	Stages StagesConfig `mapstructure:"stages"`
	Redis  RedisConfig  `mapstructure:"redis"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Server ServerConfig `mapstructure:"server"`
	Lock   LockConfig   `mapstructure:"lock"`
}

type WorkerConfig struct {
	ResourceAPIServer  string        `mapstructure:"resource_api_server"`
	ResourceAPIVersion string        `mapstructure:"resource_api_version"`
	ResourceName       string        `mapstructure:"resource_name"`
	ResourceAPIToken   string        `mapstructure:"resource_api_token"`
	UseAPI             bool          `mapstructure:"use_api"`
	SandboxMode        bool          `mapstructure:"sandbox_mode"`
	Timezone           string        `mapstructure:"timezone"`
	MisfireGrace       time.Duration `mapstructure:"misfire_grace"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
}

type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

type StoreConfig struct {
	ConflictRetries int `mapstructure:"conflict_retries"`
}

type StagesConfig struct {
	PauseDuration time.Duration     `mapstructure:"pause_duration"`
	RoundDuration time.Duration     `mapstructure:"round_duration"`
	Rounds        int               `mapstructure:"rounds"`
	FastForward   FastForwardConfig `mapstructure:"fast_forward"`
}

type FastForwardConfig struct {
	PauseDuration time.Duration `mapstructure:"pause_duration"`
	RoundDuration time.Duration `mapstructure:"round_duration"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type LockConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.resource_api_server", "http://localhost:6543")
	v.SetDefault("worker.resource_api_version", "2.5")
	v.SetDefault("worker.resource_name", "tenders")
	v.SetDefault("worker.resource_api_token", "")
	v.SetDefault("worker.use_api", true)
	v.SetDefault("worker.sandbox_mode", false)
	v.SetDefault("worker.timezone", "Europe/Kiev")
	v.SetDefault("worker.misfire_grace", 100*time.Second)
	v.SetDefault("worker.http_timeout", 10*time.Second)
	v.SetDefault("retry.attempts", 10)
	v.SetDefault("retry.delay", time.Second)
	v.SetDefault("store.conflict_retries", 5)
	v.SetDefault("stages.pause_duration", 5*time.Minute)
	v.SetDefault("stages.round_duration", 2*time.Minute)
	v.SetDefault("stages.rounds", 3)
	v.SetDefault("stages.fast_forward.pause_duration", 10*time.Second)
	v.SetDefault("stages.fast_forward.round_duration", 5*time.Second)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.max_open_conns", 5)
	v.SetDefault("mysql.max_idle_conns", 2)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.migrate", true)
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("lock.ttl", 30*time.Second)
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("worker.resource_api_server", "RESOURCE_API_SERVER")
	v.BindEnv("worker.resource_api_version", "RESOURCE_API_VERSION")
	v.BindEnv("worker.resource_name", "RESOURCE_NAME")
	v.BindEnv("worker.resource_api_token", "RESOURCE_API_TOKEN")
	v.BindEnv("worker.sandbox_mode", "SANDBOX_MODE")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("mysql.dsn", "MYSQL_DSN")
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
}

// Load reads configuration from defaults, an optional config file and the
// environment. An empty configFile searches the usual locations.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/auction-worker/")
	}

	v.SetEnvPrefix("AUCTION_WORKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
		// Config file not found, continue with defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be positive, got %d", c.Retry.Attempts)
	}
	if c.Store.ConflictRetries < 1 {
		return fmt.Errorf("store.conflict_retries must be positive, got %d", c.Store.ConflictRetries)
	}
	if c.Stages.Rounds < 1 {
		return fmt.Errorf("stages.rounds must be positive, got %d", c.Stages.Rounds)
	}
	if _, err := time.LoadLocation(c.Worker.Timezone); err != nil {
		return fmt.Errorf("worker.timezone: %w", err)
	}
	return nil
}

// Location returns the scheduler timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Worker.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"API: %s/api/%s/%s, Redis: %s, MySQL journal: %t, Server: %s:%d, Sandbox: %t",
		c.Worker.ResourceAPIServer,
		c.Worker.ResourceAPIVersion,
		c.Worker.ResourceName,
		c.Redis.Address,
		c.MySQL.DSN != "",
		c.Server.Host,
		c.Server.Port,
		c.Worker.SandboxMode,
	)
}
