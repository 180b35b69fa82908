package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"go.uber.org/zap"
)

// Dialect is a supported SQL backend.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ErrNoDatabase is returned when no database URL is configured.
var ErrNoDatabase = errors.New("database url is not configured")

// ParseURL picks the dialect for rawURL and returns the DSN to hand to its
// driver. postgres:// and postgresql:// URLs select Postgres. mysql:// URLs
// and native go-sql-driver DSNs ("user:pass@tcp(host)/db") select MySQL.
func ParseURL(rawURL string) (Dialect, string, error) {
	switch {
	case rawURL == "":
		return "", "", ErrNoDatabase
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return Postgres, rawURL, nil
	case strings.HasPrefix(rawURL, "mysql://"):
		dsn, err := mysqlDSN(rawURL)
		if err != nil {
			return "", "", err
		}
		return MySQL, dsn, nil
	case strings.Contains(rawURL, "@tcp(") || strings.Contains(rawURL, "@unix("):
		cfg, err := mysqldriver.ParseDSN(rawURL)
		if err != nil {
			return "", "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return MySQL, cfg.FormatDSN(), nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme in %q", redactURL(rawURL))
	}
}

func mysqlDSN(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid mysql url: %w", err)
	}
	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Hostname() + ":3306"
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.ParseTime = true
	for k, v := range u.Query() {
		if len(v) == 0 {
			continue
		}
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params[k] = v[0]
	}
	return cfg.FormatDSN(), nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

// Open connects to the database in cfg.URL.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	dialect, dsn, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	gcfg := &gorm.Config{Logger: newGormLogger(logger.Named("gorm"), time.Second)}

	var (
		db      *gorm.DB
		closers []func()
	)
	switch dialect {
	case Postgres:
		pcfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres url: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			pcfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		if d := cfg.ConnMaxLifetime.Duration(); d > 0 {
			pcfg.MaxConnLifetime = d
		}
		pool, err := pgxpool.NewWithConfig(ctx, pcfg)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		db, err = gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), gcfg)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
	case MySQL:
		db, err = gorm.Open(mysql.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("opening mysql: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	if d := cfg.ConnMaxLifetime.Duration(); d > 0 {
		sqlDB.SetConnMaxLifetime(d)
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		logger.Warn(ctx, "failed to install otelgorm plugin", zap.Error(err))
	}

	s := New(db, logger)
	s.dialect = dialect
	s.closeFn = func() error {
		err := sqlDB.Close()
		for _, c := range closers {
			c()
		}
		return err
	}
	logger.Info(ctx, "connected to database", zap.String("dialect", string(dialect)))
	return s, nil
}
