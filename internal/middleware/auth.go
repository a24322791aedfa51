package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/pkg/auth"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
	"github.com/jwalitptl/shadowing-api/pkg/httputil"
)

const ContextIdentity = "identity"

// DefaultTokenCacheTTL is the longest a validated token is remembered.
const DefaultTokenCacheTTL = 5 * time.Minute

type AuthMiddleware struct {
	jwt      auth.JWTService
	cache    *gocache.Cache
	cacheTTL time.Duration
	now      func() time.Time
}

func NewAuthMiddleware(jwt auth.JWTService, cacheTTL time.Duration) *AuthMiddleware {
	if cacheTTL <= 0 {
		cacheTTL = DefaultTokenCacheTTL
	}
	return &AuthMiddleware{
		jwt:      jwt,
		cache:    gocache.New(cacheTTL, 2*cacheTTL),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Authenticate verifies the bearer token and stores the caller's identity in
// the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, errors.Unauthorized("missing authorization header", nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.RespondWithError(c, errors.Unauthorized("invalid authorization format", nil))
			return
		}

		identity, err := m.identify(parts[1])
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized("invalid token", err))
			return
		}

		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

// identify validates token, remembering the result no longer than the token
// itself stays valid.
func (m *AuthMiddleware) identify(token string) (model.Identity, error) {
	if cached, ok := m.cache.Get(token); ok {
		return cached.(model.Identity), nil
	}

	claims, err := m.jwt.ValidateToken(token)
	if err != nil {
		return model.Identity{}, err
	}
	identity, err := auth.IdentityFromClaims(claims)
	if err != nil {
		return model.Identity{}, err
	}

	ttl := m.cacheTTL
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Sub(m.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		m.cache.Set(token, identity, ttl)
	}
	return identity, nil
}

// RequireRole lets the request through only if the caller has one of roles.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok {
			httputil.RespondWithError(c, errors.Unauthorized("missing identity", nil))
			return
		}
		for _, r := range roles {
			if identity.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("role "+string(identity.Role)+" may not perform this action"))
	}
}

// GetIdentity returns the caller set by Authenticate.
func GetIdentity(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return model.Identity{}, false
	}
	identity, ok := v.(model.Identity)
	return identity, ok
}
