package conn

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ordercore/internal/errors"
	"ordercore/pkg/exception"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"

	defaultMaxOpenConns    = 8
	defaultMaxIdleConns    = 4
	defaultConnMaxLifetime = 30 * time.Minute
)

// Option defines connection options for PostgreSQL.
type Option struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	Params          map[string]string
	ConnString      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Config          *gorm.Config
}

// Client wraps a PostgreSQL connection pool.
type Client struct {
	opt Option
	db  *gorm.DB
}

// New opens a PostgreSQL pool from the provided options and verifies it is
// reachable. Failures are reported as exception.ErrConnectivity.
func New(ctx context.Context, option Option) (*Client, error) {
	connString, err := option.DSN()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(connString), option.gormConfig())
	if err != nil {
		return nil, errors.Join(exception.ErrConnectivity, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Join(exception.ErrConnectivity, err)
	}
	sqlDB.SetMaxOpenConns(option.maxOpenConns())
	sqlDB.SetMaxIdleConns(option.maxIdleConns())
	sqlDB.SetConnMaxLifetime(option.connMaxLifetime())

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Join(exception.ErrConnectivity, errors.Wrapf(err, "ping %s", option.address()))
	}

	return &Client{opt: option, db: db}, nil
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DSN builds the postgres:// connection string.
func (opt Option) DSN() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	if opt.Port < 0 || opt.Port > 65535 {
		return "", errors.Wrapf(exception.ErrStoreInvalidDSN, "port %d", opt.Port)
	}

	host := strings.TrimSpace(opt.Host)
	if host == "" {
		host = defaultPostgresHost
	}

	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}

	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}

	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	if len(query) != 0 {
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}

func (opt Option) address() string {
	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	return fmt.Sprintf("%s:%d/%s", host, port, opt.Database)
}

func (opt Option) gormConfig() *gorm.Config {
	if opt.Config != nil {
		return opt.Config
	}
	return &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		TranslateError:         true,
		SkipDefaultTransaction: true,
	}
}

func (opt Option) maxOpenConns() int {
	if opt.MaxOpenConns > 0 {
		return opt.MaxOpenConns
	}
	return defaultMaxOpenConns
}

func (opt Option) maxIdleConns() int {
	if opt.MaxIdleConns > 0 {
		return opt.MaxIdleConns
	}
	return defaultMaxIdleConns
}

func (opt Option) connMaxLifetime() time.Duration {
	if opt.ConnMaxLifetime > 0 {
		return opt.ConnMaxLifetime
	}
	return defaultConnMaxLifetime
}
