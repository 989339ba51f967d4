// Package session holds the active identity and its durable token file.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/logging"
	"github.com/vitwang05/lexreview/internal/metrics"
	"github.com/vitwang05/lexreview/pkg/client"
	"github.com/vitwang05/lexreview/pkg/models"
	"github.com/vitwang05/lexreview/pkg/protocol"
)

// Tokens within this margin of expiry are not restored.
const expiryMargin = time.Minute

// Authenticator exchanges credentials for a token. *client.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*protocol.LoginResponse, error)
}

// TokenFile is the durable mirror of the active identity.
type TokenFile struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
	Server    string      `json:"server"`
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
}

// Store owns the active identity. It is safe for concurrent use and satisfies
// client.TokenSource.
type Store struct {
	path   string
	server string

	mu      sync.RWMutex
	current *models.Identity
}

var _ client.TokenSource = (*Store)(nil)

// New creates a store mirrored at path. server is recorded in the mirror so a
// token issued by one backend is never replayed against another.
func New(path, server string) *Store {
	return &Store{path: path, server: server}
}

// Open restores the identity from the mirror. A missing, unreadable, expired or
// foreign mirror leaves the store logged out; only the first three are removed.
func (s *Store) Open() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil || tf.Token == "" || tf.Username == "" {
		logging.Warn("discarding unreadable token file", zap.String("path", s.path))
		return s.removeMirror()
	}
	if tf.Server != s.server {
		logging.Debug("token file belongs to another server",
			zap.String("server", tf.Server),
			zap.String("want", s.server),
		)
		return nil
	}

	id := &models.Identity{Principal: tf.Username, Role: tf.Role, Token: tf.Token, ExpiresAt: tf.ExpiresAt}
	if id.Role == "" {
		id.Role = deriveIdentity(tf.Username, tf.Token).Role
	}
	if id.IsExpired(expiryMargin) {
		logging.Info("saved session expired", zap.String("user", tf.Username))
		return s.removeMirror()
	}

	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	logging.Debug("session restored", zap.String("user", id.Principal), zap.String("role", string(id.Role)))
	return nil
}

// Login exchanges credentials through auth, persists the mirror and makes the
// identity active. Any failure is an AuthError carrying the backend detail.
func (s *Store) Login(ctx context.Context, auth Authenticator, principal, secret string) (*models.Identity, error) {
	resp, err := auth.Login(ctx, principal, secret)
	if err != nil {
		metrics.RecordLogin(false)
		logging.Warn("login failed", zap.String("user", principal), zap.Error(err))
		return nil, &apperr.Error{
			Kind:   apperr.KindAuth,
			Op:     "login",
			Detail: client.Detail(err),
			Err:    err,
		}
	}
	metrics.RecordLogin(true)

	id := deriveIdentity(principal, resp.AccessToken)
	if err := s.writeMirror(id); err != nil {
		// The session still works for this process.
		logging.Warn("failed to save token file", zap.String("path", s.path), zap.Error(err))
	}

	s.mu.Lock()
	s.current = id
	s.mu.Unlock()

	logging.Info("logged in", zap.String("user", id.Principal), zap.String("role", string(id.Role)))
	out := *id
	return &out, nil
}

// Logout clears the active identity and its mirror. Calling it while logged
// out is a no-op.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return s.removeMirror()
}

// CurrentToken returns the active bearer token, or "" when logged out.
func (s *Store) CurrentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// Identity returns a copy of the active identity.
func (s *Store) Identity() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.Identity{}, false
	}
	return *s.current, true
}

// IsAdmin reports whether the active identity has the admin role.
func (s *Store) IsAdmin() bool {
	id, ok := s.Identity()
	return ok && id.Role == models.RoleAdmin
}

func (s *Store) writeMirror(id *models.Identity) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(TokenFile{
		Token:     id.Token,
		ExpiresAt: id.ExpiresAt,
		Server:    s.server,
		Username:  id.Principal,
		Role:      id.Role,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

func (s *Store) removeMirror() error {
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// deriveIdentity reads role and expiry from the token when it is a JWT. The
// signature is not checked here; the backend validates every request. Opaque
// tokens fall back to the username: "admin" is the admin account.
func deriveIdentity(principal, token string) *models.Identity {
	id := &models.Identity{Principal: principal, Role: models.RoleUser, Token: token}
	if principal == "admin" {
		id.Role = models.RoleAdmin
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return id
	}

	if id.Principal == "" {
		if sub, err := claims.GetSubject(); err == nil {
			id.Principal = sub
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	switch role := claims["role"].(type) {
	case string:
		if role == string(models.RoleAdmin) {
			id.Role = models.RoleAdmin
		} else {
			id.Role = models.RoleUser
		}
	default:
		if admin, ok := claims["is_admin"].(bool); ok {
			id.Role = models.RoleUser
			if admin {
				id.Role = models.RoleAdmin
			}
		}
	}
	return id
}
