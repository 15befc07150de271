package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration. Each role (manager, general,
// product) loads the same shape but only reads the sections it cares about.
type Config struct {
	Role        RoleConfig        `mapstructure:"role"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Site        SiteConfig        `mapstructure:"site"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// RoleConfig identifies this process and its scheduling parameters.
type RoleConfig struct {
	ID                    string        `mapstructure:"id"`
	MaxWorkerID           int           `mapstructure:"max_worker_id"`
	LiveWindow            time.Duration `mapstructure:"live_window"`
	// The Lock* fields are loaded but not passed to any Locker; every role
	// builds its Locker with lock.DefaultParams().
	LockTTL               time.Duration `mapstructure:"lock_ttl"`
	LockStale             time.Duration `mapstructure:"lock_stale"`
	LockRefreshMin        time.Duration `mapstructure:"lock_refresh_min"`
	LockRefreshMax        time.Duration `mapstructure:"lock_refresh_max"`
	LockOwnershipDrift     time.Duration `mapstructure:"lock_ownership_drift"`
	ManagerTickInterval    time.Duration `mapstructure:"manager_tick_interval"`
	GeneralTickInterval    time.Duration `mapstructure:"general_tick_interval"`
	ProductPollInterval    time.Duration `mapstructure:"product_poll_interval"`
	BatchPollInterval      time.Duration `mapstructure:"batch_poll_interval"`
	HeartbeatInterval      time.Duration `mapstructure:"heartbeat_interval"`
	TabsPerBatch           int           `mapstructure:"tabs_per_batch"`
	TabOpenDelayMin        time.Duration `mapstructure:"tab_open_delay_min"`
	TabOpenDelayMax        time.Duration `mapstructure:"tab_open_delay_max"`
	ServiceUnavailableWait time.Duration `mapstructure:"service_unavailable_wait"`
	LoginWait              time.Duration `mapstructure:"login_wait"`
	EnableRoundRobin       bool          `mapstructure:"enable_round_robin_rotation"`
	// RotationBatchSize is loaded but not read: the rotation strategy always
	// assigns manager.RotationBatchSize (50) pages per worker.
	RotationBatchSize      int           `mapstructure:"rotation_batch_size"`
	ProductWorkerTotal     int           `mapstructure:"product_worker_total"`
	ParallelTabOpen        bool          `mapstructure:"parallel_tab_open"`
	DiagInterval           time.Duration `mapstructure:"diag_interval"`
}

// CoordinatorConfig selects and configures the shared key-value store.
type CoordinatorConfig struct {
	Backend   string `mapstructure:"backend"` // "redis" or "etcd"
	Namespace string `mapstructure:"namespace"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	EtcdEndpoints []string      `mapstructure:"etcd_endpoints"`
	EtcdTimeout   time.Duration `mapstructure:"etcd_timeout"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Enabled bool     `mapstructure:"enabled"`
}

type SiteConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	ListingURLTemplate  string `mapstructure:"listing_url_template"` // must contain "page=%d"
	// SignedInSelector is loaded but not read: the General worker's session
	// check always looks for [data-signed-in].
	SignedInSelector    string `mapstructure:"signed_in_selector"`
}

type ProxyConfig struct {
	Server   string `mapstructure:"server"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type BrowserConfig struct {
	RemoteDebugURL string        `mapstructure:"remote_debug_url"`
	Headless       bool          `mapstructure:"headless"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	Proxy          ProxyConfig   `mapstructure:"proxy"`
	MaxNavPerSec   float64       `mapstructure:"max_nav_per_sec"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	JaegerURL    string  `mapstructure:"jaeger_url"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

// Load reads configuration for a given process name ("manager", "general",
// "product"), layering defaults, an optional YAML file, and environment
// variables prefixed PAGEFLEET_.
func Load(processName string) (*Config, error) {
	viper.SetConfigName(processName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/pagefleet")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("PAGEFLEET")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&cfg)

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("role.max_worker_id", 20)
	viper.SetDefault("role.live_window", 60*time.Second)
	viper.SetDefault("role.lock_ttl", 60*time.Second)
	viper.SetDefault("role.lock_stale", 30*time.Second)
	viper.SetDefault("role.lock_refresh_min", 5*time.Second)
	viper.SetDefault("role.lock_refresh_max", 10*time.Second)
	viper.SetDefault("role.lock_ownership_drift", 20*time.Second)
	viper.SetDefault("role.manager_tick_interval", 5*time.Second)
	viper.SetDefault("role.general_tick_interval", 5*time.Second)
	viper.SetDefault("role.product_poll_interval", 2*time.Second)
	viper.SetDefault("role.batch_poll_interval", 2*time.Second)
	viper.SetDefault("role.heartbeat_interval", 10*time.Second)
	viper.SetDefault("role.tabs_per_batch", 50)
	viper.SetDefault("role.tab_open_delay_min", 1*time.Second)
	viper.SetDefault("role.tab_open_delay_max", 3*time.Second)
	viper.SetDefault("role.service_unavailable_wait", 5*time.Minute)
	viper.SetDefault("role.login_wait", 5*time.Minute)
	viper.SetDefault("role.enable_round_robin_rotation", false)
	viper.SetDefault("role.rotation_batch_size", 50)
	viper.SetDefault("role.product_worker_total", 1)
	viper.SetDefault("role.parallel_tab_open", false)
	viper.SetDefault("role.diag_interval", time.Minute)

	viper.SetDefault("coordinator.backend", "redis")
	viper.SetDefault("coordinator.namespace", "pagefleet")
	viper.SetDefault("coordinator.redis_addr", "localhost:6379")
	viper.SetDefault("coordinator.redis_db", 0)
	viper.SetDefault("coordinator.etcd_endpoints", []string{"localhost:2379"})
	viper.SetDefault("coordinator.etcd_timeout", 5*time.Second)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "pagefleet")
	viper.SetDefault("database.password", "pagefleet")
	viper.SetDefault("database.name", "pagefleet")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 10)

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "pagefleet.lifecycle")
	viper.SetDefault("kafka.enabled", false)

	viper.SetDefault("site.listing_url_template", "https://example-commerce.test/listing?page=%d")
	viper.SetDefault("site.signed_in_selector", "[data-testid=\"account-menu\"]")

	viper.SetDefault("browser.headless", true)
	viper.SetDefault("browser.nav_timeout", 45*time.Second)
	viper.SetDefault("browser.max_nav_per_sec", 2.0)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.jaeger_url", "http://localhost:14268/api/traces")
	viper.SetDefault("telemetry.sampling_rate", 0.1)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "json")
	viper.SetDefault("logger.output", "stdout")
	viper.SetDefault("logger.add_caller", true)
	viper.SetDefault("logger.stacktrace", false)
}

func overrideFromEnv(cfg *Config) {
	if id := viper.GetString("ROLE_ID"); id != "" {
		cfg.Role.ID = id
	}
	if addr := viper.GetString("COORDINATOR_REDIS_ADDR"); addr != "" {
		cfg.Coordinator.RedisAddr = addr
	}
	if backend := viper.GetString("COORDINATOR_BACKEND"); backend != "" {
		cfg.Coordinator.Backend = backend
	}
	if host := viper.GetString("DATABASE_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := viper.GetInt("DATABASE_PORT"); port != 0 {
		cfg.Database.Port = port
	}
	if brokers := viper.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if baseURL := viper.GetString("SITE_BASE_URL"); baseURL != "" {
		cfg.Site.BaseURL = baseURL
	}
	if proxy := viper.GetString("BROWSER_PROXY_SERVER"); proxy != "" {
		cfg.Browser.Proxy.Server = proxy
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}
