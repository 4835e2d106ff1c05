package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Roles recognized by the gateway.
const (
	RoleAdmin  = "ADMIN"
	RoleMinter = "MINTER"
	RolePauser = "PAUSER"
)

var ErrMissingRole = errors.New("caller lacks required role")

const roleKeyFmt = "auth:role:%s" // %s = role name

func roleKey(role string) string {
	return fmt.Sprintf(roleKeyFmt, role)
}

// RequireRole fails unless addr holds role. Addresses are stored lowercased
// so checksummed and plain hex forms compare equal.
func RequireRole(ctx context.Context, rdb *redis.Client, addr, role string) error {
	ok, err := rdb.SIsMember(ctx, roleKey(role), strings.ToLower(addr)).Result()
	if err != nil {
		return fmt.Errorf("check role %s: %w", role, err)
	}
	if !ok {
		return ErrMissingRole
	}
	return nil
}

// GrantRole adds addr to a role set.
func GrantRole(ctx context.Context, rdb *redis.Client, addr, role string) error {
	return rdb.SAdd(ctx, roleKey(role), strings.ToLower(addr)).Err()
}

// RevokeRole removes addr from a role set.
func RevokeRole(ctx context.Context, rdb *redis.Client, addr, role string) error {
	return rdb.SRem(ctx, roleKey(role), strings.ToLower(addr)).Err()
}

// RoleGate returns a Gin handler that rejects callers without the role.
// It must run after Middleware, which authenticates the wallet address.
func RoleGate(rdb *redis.Client, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString(ctxWallet)
		if wallet == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		if err := RequireRole(c.Request.Context(), rdb, wallet, role); err != nil {
			if errors.Is(err, ErrMissingRole) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing role " + role})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Next()
	}
}
