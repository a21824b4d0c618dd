package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
)

type Config struct {
	ServiceName string `yaml:"service_name"`
	Env         string `yaml:"env"`
	HTTPAddr    string `yaml:"http_addr"`

	// CallTimeout caps every call to an external collaborator.
	CallTimeout time.Duration `yaml:"call_timeout"`

	Orders    Orders    `yaml:"orders"`
	Inventory Inventory `yaml:"inventory"`
	Payment   Payment   `yaml:"payment"`
	Tracing   Tracing   `yaml:"tracing"`
}

type Orders struct {
	// Backend selects the order store: "memory" or "mysql".
	Backend  string `yaml:"backend"`
	MySQLDSN string `yaml:"mysql_dsn"`
}

type Inventory struct {
	// Backend selects the inventory store: "memory" or "redis".
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`

	Seed []SeedItem `yaml:"seed"`
}

type SeedItem struct {
	ProductID string `yaml:"product_id"`
	Name      string `yaml:"name"`
	Stock     int    `yaml:"stock"`
	Price     int64  `yaml:"price"`
}

type Payment struct {
	// SuccessRate is the probability a simulated charge succeeds.
	SuccessRate float64 `yaml:"success_rate"`
}

type Tracing struct {
	Enabled        bool   `yaml:"enabled"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

// Default returns the configuration used when no file or env overrides are
// present, including the demo catalog.
func Default() *Config {
	return &Config{
		ServiceName: "orderflow",
		Env:         "dev",
		HTTPAddr:    ":8080",
		CallTimeout: 5 * time.Second,
		Orders:      Orders{Backend: BackendMemory},
		Inventory: Inventory{
			Backend: BackendMemory,
			Seed: []SeedItem{
				{ProductID: "PROD001", Name: "Laptop", Stock: 10, Price: 99999},
				{ProductID: "PROD002", Name: "Mouse", Stock: 50, Price: 2999},
				{ProductID: "PROD003", Name: "Keyboard", Stock: 30, Price: 7999},
				{ProductID: "PROD004", Name: "Monitor", Stock: 15, Price: 29999},
				{ProductID: "PROD005", Name: "Headphones", Stock: 25, Price: 14999},
			},
		},
		Payment: Payment{SuccessRate: 0.9},
		Tracing: Tracing{Enabled: false, JaegerEndpoint: "http://localhost:14268/api/traces"},
	}
}

// Load builds the configuration from defaults, an optional yaml file
// (CONFIG_FILE or the given path), and env overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if env := os.Getenv("CONFIG_FILE"); env != "" {
		path = env
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file is fine; defaults plus env apply.
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ServiceName = getenvDefault("SERVICE_NAME", cfg.ServiceName)
	cfg.Env = getenvDefault("ENV", cfg.Env)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Orders.Backend = getenvDefault("ORDERS_BACKEND", cfg.Orders.Backend)
	cfg.Orders.MySQLDSN = getenvDefault("MYSQL_DSN", cfg.Orders.MySQLDSN)
	cfg.Inventory.Backend = getenvDefault("INVENTORY_BACKEND", cfg.Inventory.Backend)
	cfg.Inventory.RedisAddr = getenvDefault("REDIS_ADDR", cfg.Inventory.RedisAddr)
	cfg.Tracing.JaegerEndpoint = getenvDefault("JAEGER_ENDPOINT", cfg.Tracing.JaegerEndpoint)

	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = enabled
		}
	}
	if v := os.Getenv("PAYMENT_SUCCESS_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Payment.SuccessRate = rate
		}
	}
	if v := os.Getenv("CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CallTimeout = d
		}
	}
}

func (c *Config) validate() error {
	switch c.Orders.Backend {
	case BackendMemory:
	case BackendMySQL:
		if c.Orders.MySQLDSN == "" {
			return fmt.Errorf("config: orders backend %q requires mysql_dsn", c.Orders.Backend)
		}
	default:
		return fmt.Errorf("config: unknown orders backend %q", c.Orders.Backend)
	}

	switch c.Inventory.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Inventory.RedisAddr == "" {
			return fmt.Errorf("config: inventory backend %q requires redis_addr", c.Inventory.Backend)
		}
	default:
		return fmt.Errorf("config: unknown inventory backend %q", c.Inventory.Backend)
	}

	if c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 1 {
		return fmt.Errorf("config: payment success_rate must be within [0, 1]")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
