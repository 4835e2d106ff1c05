// Package api exposes the mint and admin surface over HTTP.
package api

import (
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ipforge/mintgate/internal/auth"
	"github.com/ipforge/mintgate/internal/authz"
	"github.com/ipforge/mintgate/internal/mint"
	"github.com/ipforge/mintgate/internal/sigledger"
	"github.com/ipforge/mintgate/internal/stage"
	"github.com/ipforge/mintgate/internal/supply"
)

// Handler wires the gateway routes onto a Gin group.
type Handler struct {
	engine *mint.Engine
	rdb    *redis.Client
	log    *zap.Logger
}

func NewHandler(engine *mint.Engine, rdb *redis.Client, log *zap.Logger) *Handler {
	return &Handler{engine: engine, rdb: rdb, log: log}
}

// Register mounts all routes. The wallet-auth middleware should already be
// applied to the group; role and action gates are layered per route here,
// and stage-scoped admin routes additionally pin the signed resource to
// the stage being changed.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/mint", auth.RoleGate(h.rdb, auth.RoleMinter), auth.ActionGate(auth.ActionMint), h.handleMint)

	rg.GET("/stages", h.handleListStages)
	rg.GET("/stages/:name", h.handleGetStage)

	admin := rg.Group("/admin", auth.RoleGate(h.rdb, auth.RoleAdmin), auth.ActionGate(auth.ActionAdmin))
	admin.POST("/stages", h.handleCreateStage)
	admin.PUT("/stages/:name/window", auth.ResourceGate("name"), h.handleSetWindow)
	admin.PUT("/stages/:name/limit", auth.ResourceGate("name"), h.handleSetLimit)
	admin.PUT("/stages/:name/cap", auth.ResourceGate("name"), h.handleSetCap)
	admin.PUT("/stages/:name/signature-required", auth.ResourceGate("name"), h.handleSetSignatureRequired)
	admin.PUT("/max-supply", h.handleSetMaxSupply)
	admin.PUT("/signer", h.handleSetSigner)
	admin.PUT("/root-ip", h.handleSetRootIP)

	pauser := rg.Group("/admin", auth.RoleGate(h.rdb, auth.RolePauser), auth.ActionGate(auth.ActionPause))
	pauser.POST("/pause", h.handlePause)
	pauser.POST("/unpause", h.handleUnpause)
}

// ── Mint ───────────────────────────────────────────────────────────────────

type mintRequest struct {
	Stage     string `json:"stage" binding:"required"`
	Recipient string `json:"recipient" binding:"required"`
	TokenID   uint64 `json:"token_id"`
	Amount    uint32 `json:"amount" binding:"required"`
	Nonce     uint64 `json:"nonce"`
	Expiry    int64  `json:"expiry"`
	Signature string `json:"signature"`
}

func (h *Handler) handleMint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// The mint's target stage arrives in the body, so the signed resource
	// is pinned here: the wallet signed for exactly this stage.
	if auth.SignedResource(c) != req.Stage {
		c.JSON(http.StatusForbidden, gin.H{"error": "signed resource mismatch"})
		return
	}

	var sig []byte
	if req.Signature != "" {
		var err error
		sig, err = hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature hex"})
			return
		}
	}

	a := &authz.MintAuthorization{
		Recipient: common.HexToAddress(req.Recipient),
		TokenID:   new(big.Int).SetUint64(req.TokenID),
		Amount:    req.Amount,
		Nonce:     new(big.Int).SetUint64(req.Nonce),
		Expiry:    req.Expiry,
		Stage:     req.Stage,
		Signature: sig,
	}

	res, err := h.engine.ExecuteMint(c.Request.Context(), req.Stage, a)
	if err != nil {
		h.fail(c, err)
		return
	}

	ips := make([]string, len(res.IPIdentities))
	for i, ip := range res.IPIdentities {
		ips[i] = ip.Hex()
	}
	c.JSON(http.StatusOK, gin.H{
		"token_ids":     res.TokenIDs,
		"ip_identities": ips,
	})
}

// ── Stage reads ────────────────────────────────────────────────────────────

func (h *Handler) handleGetStage(c *gin.Context) {
	info, err := h.engine.Stage(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stageInfoJSON(info))
}

func (h *Handler) handleListStages(c *gin.Context) {
	infos, err := h.engine.Stages(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]gin.H, len(infos))
	for i := range infos {
		out[i] = stageInfoJSON(&infos[i])
	}
	c.JSON(http.StatusOK, out)
}

func stageInfoJSON(info *mint.StageInfo) gin.H {
	return gin.H{
		"name":               info.Stage.Name,
		"signature_required": info.Stage.SignatureRequired,
		"per_address_limit":  info.Stage.PerAddressLimit,
		"cap":                info.Stage.Cap,
		"start_time":         info.Stage.StartTime,
		"end_time":           info.Stage.EndTime,
		"state":              info.State.String(),
		"minted_total":       info.MintedTotal,
	}
}

// ── Admin: stages ──────────────────────────────────────────────────────────

type createStageRequest struct {
	Name              string `json:"name" binding:"required"`
	SignatureRequired bool   `json:"signature_required"`
	PerAddressLimit   uint64 `json:"per_address_limit"`
	Cap               uint64 `json:"cap"`
	StartTime         int64  `json:"start_time"`
	EndTime           int64  `json:"end_time"`
}

func (h *Handler) handleCreateStage(c *gin.Context) {
	var req createStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	err := h.engine.CreateStage(c.Request.Context(), stage.Stage{
		Name:              req.Name,
		SignatureRequired: req.SignatureRequired,
		PerAddressLimit:   req.PerAddressLimit,
		Cap:               req.Cap,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

func (h *Handler) handleSetWindow(c *gin.Context) {
	var req struct {
		StartTime int64 `json:"start_time"`
		EndTime   int64 `json:"end_time"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.adminResult(c, h.engine.SetStageWindow(c.Request.Context(), c.Param("name"), req.StartTime, req.EndTime))
}

func (h *Handler) handleSetLimit(c *gin.Context) {
	var req struct {
		PerAddressLimit uint64 `json:"per_address_limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.adminResult(c, h.engine.SetStagePerAddressLimit(c.Request.Context(), c.Param("name"), req.PerAddressLimit))
}

func (h *Handler) handleSetCap(c *gin.Context) {
	var req struct {
		Cap uint64 `json:"cap"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.adminResult(c, h.engine.SetStageCap(c.Request.Context(), c.Param("name"), req.Cap))
}

func (h *Handler) handleSetSignatureRequired(c *gin.Context) {
	var req struct {
		SignatureRequired *bool `json:"signature_required" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.adminResult(c, h.engine.SetStageSignatureRequired(c.Request.Context(), c.Param("name"), *req.SignatureRequired))
}

// ── Admin: gateway config ──────────────────────────────────────────────────

func (h *Handler) handleSetMaxSupply(c *gin.Context) {
	var req struct {
		MaxSupply uint64 `json:"max_supply" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.adminResult(c, h.engine.SetMaxSupply(c.Request.Context(), req.MaxSupply))
}

func (h *Handler) handleSetSigner(c *gin.Context) {
	var req struct {
		Signer string `json:"signer" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.adminResult(c, h.engine.SetSigner(c.Request.Context(), common.HexToAddress(req.Signer)))
}

func (h *Handler) handleSetRootIP(c *gin.Context) {
	var req struct {
		RootIP          string `json:"root_ip" binding:"required"`
		LicenseTemplate string `json:"license_template" binding:"required"`
		LicenseTermsID  int64  `json:"license_terms_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.adminResult(c, h.engine.SetRootIP(
		c.Request.Context(),
		common.HexToAddress(req.RootIP),
		common.HexToAddress(req.LicenseTemplate),
		req.LicenseTermsID,
	))
}

func (h *Handler) handlePause(c *gin.Context) {
	h.adminResult(c, h.engine.Pause(c.Request.Context()))
}

func (h *Handler) handleUnpause(c *gin.Context) {
	h.adminResult(c, h.engine.Unpause(c.Request.Context()))
}

func (h *Handler) adminResult(c *gin.Context, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// fail maps the gateway error taxonomy onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, stage.ErrStageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, stage.ErrStageExists):
		status = http.StatusConflict
	case errors.Is(err, stage.ErrInvalidCap),
		errors.Is(err, stage.ErrInvalidMaxSupply),
		errors.Is(err, mint.ErrInvalidAmount),
		errors.Is(err, mint.ErrStageMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, sigledger.ErrSignatureUsed),
		errors.Is(err, sigledger.ErrSignatureExpired),
		errors.Is(err, sigledger.ErrInvalidSignature):
		status = http.StatusUnauthorized
	case errors.Is(err, mint.ErrStageNotActive),
		errors.Is(err, mint.ErrPaused),
		errors.Is(err, supply.ErrPerAddressLimit),
		errors.Is(err, supply.ErrStageCap),
		errors.Is(err, supply.ErrCollectionSupply),
		errors.Is(err, supply.ErrCounterOverflow):
		status = http.StatusForbidden
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
