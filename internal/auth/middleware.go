package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// Bearer enforces HS256 bearer tokens from the Authorization header and
// stores the caller's Actor on the context.
func Bearer(issuer *Issuer) gin.HandlerFunc {
	return authenticate(issuer, false)
}

// BearerOrQuery is Bearer that also accepts a token query parameter.
// Browsers cannot set headers when opening a websocket; mount it on those routes only.
func BearerOrQuery(issuer *Issuer) gin.HandlerFunc {
	return authenticate(issuer, true)
}

func authenticate(issuer *Issuer, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""
		authz := c.GetHeader("Authorization")
		if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			tokenStr = strings.TrimSpace(authz[len("bearer "):])
		} else if allowQuery {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing bearer token"})
			return
		}
		actor, err := issuer.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid token"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// Require rejects callers whose role is not in roles.
func Require(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "not authenticated"})
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "forbidden"})
	}
}

// ActorFrom returns the Actor stored by Bearer.
func ActorFrom(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}
