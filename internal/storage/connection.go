package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"azureorm/internal/config"
)

const DefaultConnectTimeout = 60 * time.Second

// TokenSource hands out a fresh bearer token per call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ConnectionString builds the go-mssqldb URL for an Azure SQL database. It
// carries no credentials; those are attached per connection.
func ConnectionString(host, database string, port int) string {
	return connectionString(host, database, port, DefaultConnectTimeout)
}

func connectionString(host, database string, port int, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	q := url.Values{}
	q.Set("database", database)
	q.Set("connection timeout", strconv.Itoa(int(timeout.Seconds())))
	q.Set("encrypt", "true")

	u := url.URL{
		Scheme:   config.DriverSQLServer,
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// trustedConnectionKeys are integrated-auth switches that conflict with
// token authentication.
var trustedConnectionKeys = map[string]struct{}{
	"trusted_connection":  {},
	"trusted connection":  {},
	"integrated security": {},
}

// stripTrustedConnection drops integrated-auth parameters from a URL or
// semicolon-separated DSN.
func stripTrustedConnection(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Host != "" {
		q := u.Query()
		for k := range q {
			if _, ok := trustedConnectionKeys[strings.ToLower(k)]; ok {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
		return u.String()
	}

	parts := strings.Split(dsn, ";")
	kept := parts[:0]
	for _, p := range parts {
		key, _, _ := strings.Cut(p, "=")
		if _, ok := trustedConnectionKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, ";")
}

type tokenCtxKey struct{}

// tokenConnector is the connection factory for token authentication. The
// pool calls Connect for every new physical connection; each call fetches a
// new token before the login handshake starts.
type tokenConnector struct {
	inner  driver.Connector
	tokens TokenSource
	logger *slog.Logger
}

// NewTokenConnector returns a connector that authenticates every new
// connection to SQL Server with a freshly issued access token.
func NewTokenConnector(dsn string, tokens TokenSource, logger *slog.Logger) (driver.Connector, error) {
	cfg, err := msdsn.Parse(stripTrustedConnection(dsn))
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	inner, err := mssql.NewSecurityTokenConnector(cfg, tokenFromContext)
	if err != nil {
		return nil, fmt.Errorf("create token connector: %w", err)
	}
	return newTokenConnector(inner, tokens, logger), nil
}

func newTokenConnector(inner driver.Connector, tokens TokenSource, logger *slog.Logger) *tokenConnector {
	return &tokenConnector{inner: inner, tokens: tokens, logger: logger}
}

func (c *tokenConnector) Connect(ctx context.Context) (driver.Conn, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	conn, err := c.inner.Connect(context.WithValue(ctx, tokenCtxKey{}, token))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	c.logger.Debug("opened database connection")
	return conn, nil
}

func (c *tokenConnector) Driver() driver.Driver {
	return c.inner.Driver()
}

// tokenFromContext is the driver's token callback. It only ever returns the
// token fetched by tokenConnector.Connect for this login.
func tokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(tokenCtxKey{}).(string)
	if !ok || token == "" {
		return "", errors.New("no access token for this connection")
	}
	return token, nil
}

// DSN renders the driver connection string for cfg. SQL Server DSNs only
// carry a user and password in password mode.
func DSN(cfg config.DatabaseConfig, authMode string) string {
	switch cfg.Driver {
	case config.DriverSQLServer:
		dsn := connectionString(cfg.Host, cfg.Name, cfg.Port, cfg.ConnectTimeout)
		if authMode == config.AuthPassword && cfg.User != "" {
			u, _ := url.Parse(dsn)
			u.User = url.UserPassword(cfg.User, cfg.Password)
			dsn = u.String()
		}
		return dsn
	case config.DriverPostgres:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
			int(cfg.ConnectTimeout.Seconds()),
		)
	case config.DriverSQLite:
		return "file:" + cfg.Path + "?_foreign_keys=on&_busy_timeout=5000"
	default:
		return ""
	}
}

// Open builds the connection pool described by cfg and checks it with a
// ping. With managed identity auth every physical connection fetches its
// own token from tokens.
func Open(ctx context.Context, cfg config.Config, tokens TokenSource, logger *slog.Logger) (*sqlx.DB, error) {
	dsn := DSN(cfg.Database, cfg.Auth.Mode)

	var db *sqlx.DB
	switch {
	case cfg.Database.Driver == config.DriverSQLServer && cfg.Auth.Mode == config.AuthManagedIdentity:
		if tokens == nil {
			return nil, fmt.Errorf("%w: managed identity auth needs a token source", ErrConnection)
		}
		connector, err := NewTokenConnector(dsn, tokens, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnection, err)
		}
		db = sqlx.NewDb(sql.OpenDB(connector), config.DriverSQLServer)
	default:
		var err error
		db, err = sqlx.Open(cfg.Database.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: open database: %w", ErrConnection, err)
		}
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	timeout := cfg.Database.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		if errors.Is(err, ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: ping database: %w", ErrConnection, err)
	}

	logger.Info("connected to database",
		"driver", cfg.Database.Driver,
		"host", cfg.Database.Host,
		"database", cfg.Database.Name,
		"auth", cfg.Auth.Mode,
	)
	return db, nil
}
