package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/pkg/client"
	"github.com/vitwang05/lexreview/pkg/models"
	"github.com/vitwang05/lexreview/pkg/protocol"
	"github.com/vitwang05/lexreview/pkg/retry"
)

const testServer = "http://backend.test"

type fakeAuth struct {
	token string
	err   error
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (*protocol.LoginResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &protocol.LoginResponse{AccessToken: f.token, TokenType: "bearer"}, nil
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestLoginOpaqueToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	s := New(path, testServer)

	id, err := s.Login(context.Background(), &fakeAuth{token: "opaque-123"}, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Principal)
	assert.Equal(t, models.RoleUser, id.Role)
	assert.Equal(t, "opaque-123", s.CurrentToken())
	assert.False(t, s.IsAdmin())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoginAdminByName(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "token.json"), testServer)
	_, err := s.Login(context.Background(), &fakeAuth{token: "opaque"}, "admin", "pw")
	require.NoError(t, err)
	assert.True(t, s.IsAdmin())
}

func TestLoginJWTClaims(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	tests := []struct {
		name   string
		claims jwt.MapClaims
		user   string
		want   models.Role
	}{
		{"role claim admin", jwt.MapClaims{"sub": "bob", "role": "admin", "exp": exp.Unix()}, "bob", models.RoleAdmin},
		{"role claim overrides name", jwt.MapClaims{"sub": "admin", "role": "user", "exp": exp.Unix()}, "admin", models.RoleUser},
		{"is_admin claim", jwt.MapClaims{"sub": "carol", "is_admin": true, "exp": exp.Unix()}, "carol", models.RoleAdmin},
		{"no role claims", jwt.MapClaims{"sub": "dave", "exp": exp.Unix()}, "dave", models.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(filepath.Join(t.TempDir(), "token.json"), testServer)
			id, err := s.Login(context.Background(), &fakeAuth{token: signed(t, tt.claims)}, tt.user, "pw")
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.Role)
			assert.True(t, id.ExpiresAt.Equal(exp), "expiry %v, want %v", id.ExpiresAt, exp)
		})
	}
}

func TestLoginFailureIsAuthError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "token.json"), testServer)

	_, err := s.Login(context.Background(), &fakeAuth{err: &client.StatusError{
		Op: "login", StatusCode: http.StatusUnauthorized, Detail: "Incorrect username or password",
	}}, "alice", "wrong")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Equal(t, "Incorrect username or password", apperr.Message(err))
	assert.Empty(t, s.CurrentToken())

	// Transport failures carry no detail and get the generic message.
	_, err = s.Login(context.Background(), &fakeAuth{err: context.DeadlineExceeded}, "alice", "pw")
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Equal(t, "login failed", apperr.Message(err))
}

func TestLogoutIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	s := New(path, testServer)
	_, err := s.Login(context.Background(), &fakeAuth{token: "tok"}, "alice", "pw")
	require.NoError(t, err)

	require.NoError(t, s.Logout())
	require.NoError(t, s.Logout())

	assert.Empty(t, s.CurrentToken())
	_, ok := s.Identity()
	assert.False(t, ok)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenRestoresMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	first := New(path, testServer)
	_, err := first.Login(context.Background(), &fakeAuth{token: "tok"}, "admin", "pw")
	require.NoError(t, err)

	second := New(path, testServer)
	require.NoError(t, second.Open())
	id, ok := second.Identity()
	require.True(t, ok)
	assert.Equal(t, "admin", id.Principal)
	assert.Equal(t, models.RoleAdmin, id.Role)
	assert.Equal(t, "tok", second.CurrentToken())
}

func TestOpenDiscardsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	writeTokenFile(t, path, TokenFile{
		Token: "old", Username: "alice", Role: models.RoleUser, Server: testServer,
		ExpiresAt: time.Now().Add(-time.Hour),
	})

	s := New(path, testServer)
	require.NoError(t, s.Open())
	assert.Empty(t, s.CurrentToken())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expired mirror should be removed")
}

func TestOpenIgnoresOtherServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	writeTokenFile(t, path, TokenFile{Token: "tok", Username: "alice", Role: models.RoleUser, Server: "http://elsewhere"})

	s := New(path, testServer)
	require.NoError(t, s.Open())
	assert.Empty(t, s.CurrentToken())
	_, err := os.Stat(path)
	assert.NoError(t, err, "foreign mirror is left in place")
}

func TestOpenMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "none.json"), testServer)
	require.NoError(t, s.Open())
	assert.Empty(t, s.CurrentToken())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0600))
	s = New(bad, testServer)
	require.NoError(t, s.Open())
	assert.Empty(t, s.CurrentToken())
}

func TestTokenReadAtCallTime(t *testing.T) {
	var seen []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == protocol.PathLogin {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "live-token", "token_type": "bearer"})
			return
		}
		seen = append(seen, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"temp": []any{}})
	}))
	defer ts.Close()

	s := New(filepath.Join(t.TempDir(), "token.json"), ts.URL)
	c := client.New(client.Config{BaseURL: ts.URL, Tokens: s, RetryConfig: retry.Once()})

	_, err := s.Login(context.Background(), c, "alice", "pw")
	require.NoError(t, err)
	_, err = c.ListFiles(context.Background(), "temp")
	require.NoError(t, err)

	require.NoError(t, s.Logout())
	_, err = c.ListFiles(context.Background(), "temp")
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer live-token", ""}, seen)
}

func writeTokenFile(t *testing.T, path string, tf TokenFile) {
	t.Helper()
	data, err := json.Marshal(tf)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))
}
