package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration.
type Config struct {
	App    AppConfig
	HTTP   HTTPConfig
	MySQL  MySQLConfig
	Redis  RedisConfig
	Order  OrderConfig
	Worker WorkerConfig
	Log    LogConfig
}

type AppConfig struct {
	Name string
	Env  string // development, production
}

type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// OrderConfig carries the submission pipeline knobs.
type OrderConfig struct {
	PendingTTL      time.Duration // submission record lifetime
	ExpiryWindow    time.Duration // unpaid-order expiry, applied by the worker
	FreightFee      string        // flat freight fee, decimal string
	FreightFreeOver string        // free-shipping threshold, decimal string
}

type WorkerConfig struct {
	Count        int
	MaxAttempts  int
	RetryDelay   time.Duration
	RequeueDelay time.Duration
	QueueName    string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Load reads configuration from an optional TOML file and MALL_ORDER_*
// environment variables. Environment overrides file, file overrides defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MALL_ORDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "mall-order")
	v.SetDefault("app.env", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readtimeout", 5*time.Second)
	v.SetDefault("http.writetimeout", 10*time.Second)

	v.SetDefault("mysql.dsn", "root:root@tcp(localhost:3306)/mall_order?parseTime=true")
	v.SetDefault("mysql.maxopenconns", 50)
	v.SetDefault("mysql.maxidleconns", 25)
	v.SetDefault("mysql.connmaxlifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolsize", 100)

	v.SetDefault("order.pendingttl", 15*time.Minute)
	v.SetDefault("order.expirywindow", 30*time.Minute)
	v.SetDefault("order.freightfee", "10.00")
	v.SetDefault("order.freightfreeover", "99.00")

	v.SetDefault("worker.count", 10)
	v.SetDefault("worker.maxattempts", 3)
	v.SetDefault("worker.retrydelay", 200*time.Millisecond)
	v.SetDefault("worker.requeuedelay", 5*time.Second)
	v.SetDefault("worker.queuename", "orders:materialize")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

func (c *Config) validate() error {
	if c.Worker.Count <= 0 {
		return fmt.Errorf("worker.count must be positive, got %d", c.Worker.Count)
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.maxattempts must be positive, got %d", c.Worker.MaxAttempts)
	}
	if c.Order.PendingTTL <= 0 {
		return fmt.Errorf("order.pendingttl must be positive, got %s", c.Order.PendingTTL)
	}
	return nil
}
