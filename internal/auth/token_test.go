package auth_test

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"azureorm/internal/auth"
	"azureorm/internal/auth/mocks"
)

type RefresherTestSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	source *mocks.MockCredentialSource
	logger *slog.Logger
}

func (s *RefresherTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.source = mocks.NewMockCredentialSource(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *RefresherTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestRefresherTestSuite(t *testing.T) {
	suite.Run(t, new(RefresherTestSuite))
}

func (s *RefresherTestSuite) TestToken_FetchesEveryCall() {
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	first := s.source.EXPECT().GetToken(gomock.Any(), auth.SQLAudience).
		Return(auth.AccessToken{Token: "tok-1", ExpiresOn: expires}, nil)
	s.source.EXPECT().GetToken(gomock.Any(), auth.SQLAudience).
		Return(auth.AccessToken{Token: "tok-2", ExpiresOn: expires}, nil).
		After(first)

	r := auth.NewRefresher(s.source, "", time.Second, s.logger)

	tok, err := r.Token(ctx)
	s.NoError(err)
	s.Equal("tok-1", tok)

	tok, err = r.Token(ctx)
	s.NoError(err)
	s.Equal("tok-2", tok)
}

func (s *RefresherTestSuite) TestToken_SourceError() {
	s.source.EXPECT().GetToken(gomock.Any(), auth.SQLAudience).
		Return(auth.AccessToken{}, errors.New("imds unreachable"))

	r := auth.NewRefresher(s.source, auth.SQLAudience, 0, s.logger)

	_, err := r.Token(context.Background())
	s.ErrorIs(err, auth.ErrAuthentication)
	s.Contains(err.Error(), "imds unreachable")
}

func (s *RefresherTestSuite) TestToken_EmptyToken() {
	s.source.EXPECT().GetToken(gomock.Any(), "https://custom/").
		Return(auth.AccessToken{}, nil)

	r := auth.NewRefresher(s.source, "https://custom/", 0, s.logger)

	_, err := r.Token(context.Background())
	s.ErrorIs(err, auth.ErrAuthentication)
}

func (s *RefresherTestSuite) TestToken_AppliesTimeout() {
	s.source.EXPECT().GetToken(gomock.Any(), auth.SQLAudience).DoAndReturn(
		func(ctx context.Context, _ string) (auth.AccessToken, error) {
			_, ok := ctx.Deadline()
			s.True(ok)
			return auth.AccessToken{Token: "tok"}, nil
		},
	)

	r := auth.NewRefresher(s.source, "", 5*time.Second, s.logger)

	_, err := r.Token(context.Background())
	s.NoError(err)
}

func TestEncodeAccessToken(t *testing.T) {
	buf, err := auth.EncodeAccessToken("abc")
	if err != nil {
		t.Fatal(err)
	}

	want := []byte{6, 0, 0, 0, 'a', 0, 'b', 0, 'c', 0}
	if string(buf) != string(want) {
		t.Fatalf("got %v, want %v", buf, want)
	}
}

func TestEncodeAccessToken_NonASCII(t *testing.T) {
	token := "tök€n"
	buf, err := auth.EncodeAccessToken(token)
	if err != nil {
		t.Fatal(err)
	}

	n := binary.LittleEndian.Uint32(buf[:4])
	if int(n) != len(buf)-4 {
		t.Fatalf("length prefix %d does not match payload %d", n, len(buf)-4)
	}

	units := make([]uint16, n/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(buf[4+2*i:])
	}
	if got := string(utf16.Decode(units)); got != token {
		t.Fatalf("decoded %q, want %q", got, token)
	}
}
