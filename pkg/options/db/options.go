// Package db provides relational store configuration options.
package db

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 支持的驱动
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options defines configuration options for the gorm-backed stores.
type Options struct {
	Driver                string        `json:"driver" mapstructure:"driver"`
	Host                  string        `json:"host" mapstructure:"host"`
	Port                  int           `json:"port" mapstructure:"port"`
	Username              string        `json:"username" mapstructure:"username"`
	Password              string        `json:"-" mapstructure:"password"`
	Database              string        `json:"database" mapstructure:"database"`
	SSLMode               string        `json:"ssl-mode" mapstructure:"ssl-mode"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
	ConnectTimeout        time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	LogLevel              int           `json:"log-level" mapstructure:"log-level"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Driver:                DriverMySQL,
		Host:                  "127.0.0.1",
		Port:                  3306,
		Username:              "root",
		SSLMode:               "disable",
		MaxIdleConnections:    10,
		MaxOpenConnections:    100,
		MaxConnectionLifeTime: 10 * time.Second,
		ConnectTimeout:        10 * time.Second,
		LogLevel:              1, // Silent
	}
}

// DSN renders the driver specific data source name.
// For sqlite, Database is the file path (":memory:" allowed).
func (o *Options) DSN() string {
	switch o.Driver {
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
			o.Host, o.Port, o.Username, o.Password, o.Database, o.SSLMode, int(o.ConnectTimeout.Seconds()))
	case DriverSQLite:
		return o.Database
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local&timeout=%s",
			o.Username, url.QueryEscape(o.Password), o.Host, o.Port, o.Database, o.ConnectTimeout)
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Password == "" {
		o.Password = os.Getenv("DB_PASSWORD")
	}

	var errs []error
	switch o.Driver {
	case DriverMySQL, DriverPostgres:
		if o.Host == "" {
			errs = append(errs, fmt.Errorf("db.host cannot be empty"))
		}
	case DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not supported", o.Driver))
	}
	if o.Database == "" {
		errs = append(errs, fmt.Errorf("db.database cannot be empty"))
	}
	if o.MaxOpenConnections <= 0 {
		errs = append(errs, fmt.Errorf("db.max-open-connections must be positive"))
	}
	return errs
}

// AddFlags adds flags for the store options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Driver, p+"db.driver", o.Driver, "Store driver (mysql|postgres|sqlite)")
	fs.StringVar(&o.Host, p+"db.host", o.Host, "Database host")
	fs.IntVar(&o.Port, p+"db.port", o.Port, "Database port")
	fs.StringVar(&o.Username, p+"db.username", o.Username, "Database username")
	fs.StringVar(&o.Password, p+"db.password", o.Password, "Database password (prefer DB_PASSWORD env var)")
	fs.StringVar(&o.Database, p+"db.database", o.Database, "Database name, or file path for sqlite")
	fs.StringVar(&o.SSLMode, p+"db.ssl-mode", o.SSLMode, "PostgreSQL SSL mode")
	fs.IntVar(&o.MaxIdleConnections, p+"db.max-idle-connections", o.MaxIdleConnections, "Max idle connections")
	fs.IntVar(&o.MaxOpenConnections, p+"db.max-open-connections", o.MaxOpenConnections, "Max open connections")
	fs.DurationVar(&o.MaxConnectionLifeTime, p+"db.max-connection-life-time", o.MaxConnectionLifeTime, "Max connection life time")
	fs.DurationVar(&o.ConnectTimeout, p+"db.connect-timeout", o.ConnectTimeout, "Connect timeout")
	fs.IntVar(&o.LogLevel, p+"db.log-level", o.LogLevel, "Gorm log level (1 silent, 2 error, 3 warn, 4 info)")
}
