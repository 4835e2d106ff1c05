package auth

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Actions a signed request can name. Every mutating route is bound to one,
// so a signed request cannot be replayed against a different operation
// class.
const (
	ActionMint  = "mint"
	ActionAdmin = "admin"
	ActionPause = "pause"
)

// SignedRequest is the JSON payload inside X-Signed-Message (fields
// sorted). Action names the operation class being invoked; Resource names
// the stage it targets, empty for gateway-wide operations.
type SignedRequest struct {
	Action    string          `json:"action"`
	ExpiresAt int64           `json:"expires_at"`
	Nonce     string          `json:"nonce"`
	Payload   json.RawMessage `json:"payload"`
	Resource  string          `json:"resource"`
}

// Context keys set by Middleware for downstream gates and handlers.
const (
	ctxWallet   = "wallet_address"
	ctxAction   = "signed_action"
	ctxResource = "signed_resource"
)

const maxFutureWindow = 5 * time.Minute

// Middleware returns a Gin handler that validates EIP-191 wallet
// signatures and exposes the authenticated wallet plus the signed
// action/resource to the per-route gates.
func Middleware(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletAddr := c.GetHeader("X-Wallet-Address")
		signedMsgB64 := c.GetHeader("X-Signed-Message")
		sigHex := c.GetHeader("X-Wallet-Signature")

		if walletAddr == "" || signedMsgB64 == "" || sigHex == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth headers"})
			return
		}

		// Decode signed message
		msgBytes, err := base64.StdEncoding.DecodeString(signedMsgB64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Signed-Message encoding"})
			return
		}

		var req SignedRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signed message JSON"})
			return
		}

		now := time.Now().Unix()

		// Check expiry
		if req.ExpiresAt <= now {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request expired"})
			return
		}
		if req.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "expires_at too far in future"})
			return
		}

		// Decode signature
		sigHex = strings.TrimPrefix(sigHex, "0x")
		sig, err := hex.DecodeString(sigHex)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature hex"})
			return
		}

		// Recover signer
		recovered, err := Recover(msgBytes, sig)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		if !strings.EqualFold(recovered.Hex(), walletAddr) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		// Nonce dedup via Redis SET NX
		nonceKey := "auth:nonce:" + req.Nonce
		ttl := time.Duration(req.ExpiresAt-now) * time.Second
		set, err := rdb.SetNX(context.Background(), nonceKey, 1, ttl).Result()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !set {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "nonce already used"})
			return
		}

		c.Set(ctxWallet, walletAddr)
		c.Set(ctxAction, req.Action)
		c.Set(ctxResource, req.Resource)
		c.Next()
	}
}

// ActionGate rejects requests whose signed action does not name the
// operation class of the route. It must run after Middleware.
func ActionGate(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxAction) != action {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "signed action mismatch"})
			return
		}
		c.Next()
	}
}

// ResourceGate rejects requests whose signed resource does not match the
// named route parameter. It must run after Middleware.
func ResourceGate(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxResource) != c.Param(param) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "signed resource mismatch"})
			return
		}
		c.Next()
	}
}

// SignedResource returns the resource named in the authenticated signed
// request, for handlers whose target stage arrives in the body.
func SignedResource(c *gin.Context) string {
	return c.GetString(ctxResource)
}
