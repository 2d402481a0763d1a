package saml

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// UserSession is an authenticated IdP session
type UserSession struct {
	UserID     string            `json:"user_id"`
	Email      string            `json:"email"`
	Name       string            `json:"name,omitempty"`
	Groups     []string          `json:"groups,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// SessionAuthenticator resolves the authenticated user for a browser
// request. A request without a valid session yields (nil, nil).
type SessionAuthenticator interface {
	Authenticate(c *gin.Context) (*UserSession, error)
}

// RedisSessionAuthenticator resolves sessions from a cookie pointing at a
// JSON session record in Redis.
type RedisSessionAuthenticator struct {
	client     *redis.Client
	cookieName string
}

// NewRedisSessionAuthenticator creates a session authenticator over Redis
func NewRedisSessionAuthenticator(client *redis.Client, cookieName string) *RedisSessionAuthenticator {
	return &RedisSessionAuthenticator{client: client, cookieName: cookieName}
}

// Authenticate resolves the session cookie against Redis
func (a *RedisSessionAuthenticator) Authenticate(c *gin.Context) (*UserSession, error) {
	sid, err := c.Cookie(a.cookieName)
	if err != nil || sid == "" {
		return nil, nil
	}

	raw, err := a.client.Get(c.Request.Context(), sessionKeyPrefix+sid).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session UserSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, nil
	}
	if !session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt) {
		return nil, nil
	}
	return &session, nil
}

// StaticSessionAuthenticator always returns the same session. Used by tests.
type StaticSessionAuthenticator struct {
	Session *UserSession
}

// Authenticate returns the fixed session
func (a *StaticSessionAuthenticator) Authenticate(_ *gin.Context) (*UserSession, error) {
	return a.Session, nil
}
