package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"azureorm/internal/auth"
	"azureorm/internal/config"
)

type fakeTokens struct {
	tokens []string
	err    error
	calls  int
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.tokens[(f.calls-1)%len(f.tokens)], nil
}

// recordingConnector captures the token the driver would send at login.
type recordingConnector struct {
	seen []string
}

func (r *recordingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	token, err := tokenFromContext(ctx)
	if err != nil {
		return nil, err
	}
	r.seen = append(r.seen, token)
	return nil, nil
}

func (r *recordingConnector) Driver() driver.Driver { return nil }

func TestConnectionString(t *testing.T) {
	got := ConnectionString("srv.database.windows.net", "trade", 1433)
	assert.Equal(t,
		"sqlserver://srv.database.windows.net:1433?connection+timeout=60&database=trade&encrypt=true",
		got)
}

func TestStripTrustedConnection(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "url",
			dsn:  "sqlserver://h:1433?database=d&Trusted_Connection=yes",
			want: "sqlserver://h:1433?database=d",
		},
		{
			name: "ado",
			dsn:  "server=h;database=d;Integrated Security=SSPI;encrypt=true",
			want: "server=h;database=d;encrypt=true",
		},
		{
			name: "untouched",
			dsn:  "sqlserver://h:1433?database=d",
			want: "sqlserver://h:1433?database=d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripTrustedConnection(tt.dsn))
		})
	}
}

func TestTokenConnector_FreshTokenPerConnection(t *testing.T) {
	inner := &recordingConnector{}
	tokens := &fakeTokens{tokens: []string{"tok-1", "tok-2"}}
	c := newTokenConnector(inner, tokens, slog.New(slog.DiscardHandler))

	for range 2 {
		_, err := c.Connect(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 2, tokens.calls)
	assert.Equal(t, []string{"tok-1", "tok-2"}, inner.seen)
}

func TestTokenConnector_TokenFailureAbortsConnection(t *testing.T) {
	inner := &recordingConnector{}
	tokens := &fakeTokens{err: auth.ErrAuthentication}
	c := newTokenConnector(inner, tokens, slog.New(slog.DiscardHandler))

	_, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, auth.ErrAuthentication)
	assert.Empty(t, inner.seen)
}

func TestTokenFromContext_Missing(t *testing.T) {
	_, err := tokenFromContext(context.Background())
	assert.Error(t, err)
}

func TestNewTokenConnector(t *testing.T) {
	c, err := NewTokenConnector(ConnectionString("localhost", "trade", 1433), &fakeTokens{tokens: []string{"t"}}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.NotNil(t, c.Driver())
}

func TestDSN(t *testing.T) {
	db := config.DatabaseConfig{Driver: config.DriverSQLServer, Host: "h", Port: 1433, Name: "d", User: "sa", Password: "pw"}
	assert.Equal(t, "sqlserver://h:1433?connection+timeout=60&database=d&encrypt=true", DSN(db, config.AuthManagedIdentity))
	assert.Equal(t, "sqlserver://sa:pw@h:1433?connection+timeout=60&database=d&encrypt=true", DSN(db, config.AuthPassword))

	db.ConnectTimeout = 15 * time.Second
	assert.Equal(t, "sqlserver://h:1433?connection+timeout=15&database=d&encrypt=true", DSN(db, config.AuthManagedIdentity))

	lite := config.DatabaseConfig{Driver: config.DriverSQLite, Path: "/tmp/x.db"}
	assert.Equal(t, "file:/tmp/x.db?_foreign_keys=on&_busy_timeout=5000", DSN(lite, ""))
}

func TestOpen_ManagedIdentityNeedsTokens(t *testing.T) {
	cfg := config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverSQLServer, Host: "h", Port: 1433, Name: "d"},
		Auth:     config.AuthConfig{Mode: config.AuthManagedIdentity},
	}
	_, err := Open(context.Background(), cfg, nil, slog.New(slog.DiscardHandler))
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestOpen_SQLite(t *testing.T) {
	cfg := config.Config{
		Database: config.DatabaseConfig{
			Driver:       config.DriverSQLite,
			Path:         t.TempDir() + "/open.db",
			MaxOpenConns: 2,
			MaxIdleConns: 1,
		},
	}
	db, err := Open(context.Background(), cfg, nil, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, config.DriverSQLite, db.DriverName())
}
