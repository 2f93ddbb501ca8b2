package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nhanz-chat/internal/auth"
)

const identityContextKey = "identity"

// LegacyUserHeader carries a bare user id from clients that predate signed tokens.
const LegacyUserHeader = "X-User-ID"

var ErrMissingCredentials = errors.New("missing authorization")

// TokenValidator resolves a bearer token into an identity.
type TokenValidator interface {
	Validate(token string) (auth.Identity, error)
}

// Authenticator resolves the caller identity once at the boundary.
type Authenticator struct {
	tokens          TokenValidator
	trustUserHeader bool
}

// NewAuthenticator builds an Authenticator. With trustUserHeader set, requests
// without a bearer token may identify themselves through X-User-ID.
func NewAuthenticator(tokens TokenValidator, trustUserHeader bool) *Authenticator {
	return &Authenticator{tokens: tokens, trustUserHeader: trustUserHeader}
}

// Identify extracts the identity from the Authorization header, the token
// query parameter used by websocket handshakes, or the legacy header.
func (a *Authenticator) Identify(r *http.Request) (auth.Identity, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return auth.Identity{}, auth.ErrInvalidToken
		}
		return a.tokens.Validate(strings.TrimSpace(parts[1]))
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return a.tokens.Validate(token)
	}
	if a.trustUserHeader {
		if userID := strings.TrimSpace(r.Header.Get(LegacyUserHeader)); userID != "" {
			return auth.Identity{UserID: userID}, nil
		}
	}
	return auth.Identity{}, ErrMissingCredentials
}

// Middleware rejects unauthenticated requests and stores the identity on the context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := a.Identify(c.Request)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, ErrMissingCredentials) {
				message = err.Error()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}
		SetIdentity(c, identity)
		c.Next()
	}
}

// SetIdentity attaches identity to the gin context.
func SetIdentity(c *gin.Context, identity auth.Identity) {
	c.Set(identityContextKey, identity)
}

// IdentityFrom returns the identity attached by Middleware.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := val.(auth.Identity)
	return identity, ok && identity.UserID != ""
}
