// Package auth obtains bearer tokens for Azure SQL and encodes them the way
// SQL Server drivers expect.
package auth

//go:generate mockgen -source=token.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/encoding/unicode"
)

const (
	// SQLAudience is the resource every database token is requested for.
	SQLAudience = "https://database.windows.net/"

	// SQLCopySSAccessToken is the ODBC pre-connect attribute that carries
	// an access token (SQL_COPT_SS_ACCESS_TOKEN).
	SQLCopySSAccessToken = 1256
)

var ErrAuthentication = errors.New("authentication failed")

type AccessToken struct {
	Token     string
	ExpiresOn time.Time
}

// CredentialSource issues bearer tokens for an audience.
type CredentialSource interface {
	GetToken(ctx context.Context, audience string) (AccessToken, error)
}

// Refresher asks its source for a new token on every call. It keeps no
// cache: tokens expire and each new database connection needs a live one.
type Refresher struct {
	source   CredentialSource
	audience string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewRefresher(source CredentialSource, audience string, timeout time.Duration, logger *slog.Logger) *Refresher {
	if audience == "" {
		audience = SQLAudience
	}
	return &Refresher{
		source:   source,
		audience: audience,
		timeout:  timeout,
		logger:   logger.With("audience", audience),
	}
}

// Token returns a fresh bearer token. Failures wrap ErrAuthentication.
func (r *Refresher) Token(ctx context.Context) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tok, err := r.source.GetToken(ctx, r.audience)
	if err != nil {
		return "", fmt.Errorf("%w: get token: %w", ErrAuthentication, err)
	}
	if tok.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuthentication)
	}

	r.logger.Debug("acquired access token", "expires_on", tok.ExpiresOn)
	return tok.Token, nil
}

// EncodeAccessToken lays the token out as the ODBC access token attribute
// expects: a little-endian uint32 byte length followed by UTF-16LE text.
func EncodeAccessToken(token string) ([]byte, error) {
	raw, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("encode token: %w", err)
	}

	buf := make([]byte, 4+len(raw))
	binary.LittleEndian.PutUint32(buf, uint32(len(raw)))
	copy(buf[4:], raw)
	return buf, nil
}
