package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type AuditConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	RetentionDays   int  `mapstructure:"retention_days" validate:"gte=1"`
	BufferSize      int  `mapstructure:"buffer_size" validate:"gte=1"`
	FlushIntervalMs int  `mapstructure:"flush_interval_ms" validate:"gte=10"`
}

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Access    AccessConfig   `mapstructure:"access"`
	Demo      DemoConfig     `mapstructure:"demo"`
	Audit     AuditConfig    `mapstructure:"audit"`
	JWTSecret string         `mapstructure:"jwt_secret" validate:"required,min=8"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gte=1,lte=65535"`
}

// AccessConfig points at an optional permission file. When empty the
// built-in table is used.
type AccessConfig struct {
	PermissionsFile string `mapstructure:"permissions_file"`
}

type DemoConfig struct {
	Seed     bool   `mapstructure:"seed"`
	Password string `mapstructure:"password" validate:"required_if=Seed true"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	Host     string `mapstructure:"host" validate:"required_if=Driver postgres"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	PoolSize int    `mapstructure:"pool_size" validate:"gte=0"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// MemoryDB is the database name that keeps the SQLite demo database in memory.
const MemoryDB = ":memory:"

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		if d.Name == MemoryDB {
			return "file::memory:?cache=shared"
		}
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

var validate = validator.New()

// Validate checks the loaded configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	SetDefaults(viper.GetViper())

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", MemoryDB)
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("jwt_secret", "changeme-secret")
	v.SetDefault("access.permissions_file", "")
	v.SetDefault("demo.seed", true)
	v.SetDefault("demo.password", "changeme")
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.retention_days", 30)
	v.SetDefault("audit.buffer_size", 200)
	v.SetDefault("audit.flush_interval_ms", 500)
}
