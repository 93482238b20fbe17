// Package http exposes the claim engine over HTTP: claim submission, the
// read-only query surface, and the administrative surface.
package http

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	claimgate "github.com/voucherlabs/claimgate"
)

// AdminHeader carries the caller identity for administrative endpoints.
// Authenticating that identity (signatures, mTLS, gateway auth) is the
// deployment's concern; the service only checks it against the AdminGuard.
const AdminHeader = "X-Admin-Address"

// Service wires the claim engine, config store, and admin guard into a
// gin router.
type Service struct {
	engine *claimgate.Engine
	cfg    *claimgate.ConfigStore
	admins claimgate.AdminGuard
}

// NewService creates the HTTP service.
func NewService(engine *claimgate.Engine, cfg *claimgate.ConfigStore, admins claimgate.AdminGuard) *Service {
	return &Service{
		engine: engine,
		cfg:    cfg,
		admins: admins,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	v1 := router.Group("/v1")
	{
		v1.POST("/claims/purchase", s.handleClaim(claimgate.KindPurchase))
		v1.POST("/claims/reward", s.handleClaim(claimgate.KindReward))

		v1.GET("/actors/:address/nonce", s.handleNonce)
		v1.GET("/actors/:address/allowance", s.handleAllowance)
		v1.GET("/actors/:address/cooldown", s.handleCooldown)
		v1.GET("/claims/:uniqueId", s.handleClaimStatus)
		v1.POST("/hash/preview", s.handlePreview)

		admin := v1.Group("/admin", s.requireAdmin)
		{
			admin.PUT("/signer", s.handleSetSigner)
			admin.PUT("/reserve", s.handleSetReserve)
			admin.PUT("/limits", s.handleSetLimits)
			admin.PUT("/expiry-window", s.handleSetExpiryWindow)
			admin.POST("/pause", s.handlePause)
			admin.POST("/unpause", s.handleUnpause)
		}
	}

	return router
}

// handleClaim submits a claim envelope of the given kind to the engine.
func (s *Service) handleClaim(kind claimgate.ClaimKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, "failed to read request body", nil))
			return
		}
		if err := validateClaimEnvelope(body); err != nil {
			s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
			return
		}

		var req ClaimRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
			return
		}
		claim, err := req.ToClaim(kind)
		if err != nil {
			s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
			return
		}

		event, err := s.engine.Execute(c.Request.Context(), claim)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newClaimResponse(event))
	}
}

func (s *Service) handleNonce(c *gin.Context) {
	actor, err := parseAddress(c.Param("address"))
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"actor": actor.Hex(),
		"nonce": s.engine.CurrentNonce(actor),
	})
}

func (s *Service) handleAllowance(c *gin.Context) {
	actor, err := parseAddress(c.Param("address"))
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"actor":     actor.Hex(),
		"remaining": s.engine.RemainingDailyAllowance(actor).String(),
	})
}

func (s *Service) handleCooldown(c *gin.Context) {
	actor, err := parseAddress(c.Param("address"))
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"actor":       actor.Hex(),
		"canClaimNow": s.engine.CanClaimNow(actor),
	})
}

func (s *Service) handleClaimStatus(c *gin.Context) {
	id, err := parseBytes32(c.Param("uniqueId"))
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uniqueId": c.Param("uniqueId"),
		"consumed": s.engine.IsConsumed(id),
	})
}

func (s *Service) handlePreview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}

	kind := claimgate.ClaimKind(req.Kind)
	if !kind.Valid() {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, "kind must be purchase or reward", nil))
		return
	}
	actor, err := parseAddress(req.Actor)
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}
	magnitude, ok := new(big.Int).SetString(req.Magnitude, 10)
	if !ok || magnitude.Sign() <= 0 {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, "magnitude must be a positive decimal string", nil))
		return
	}
	uniqueID, err := parseBytes32(req.UniqueID)
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}
	nonce, err := strconv.ParseUint(req.Nonce, 10, 64)
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, "invalid nonce", nil))
		return
	}
	expiry, err := strconv.ParseUint(req.Expiry, 10, 64)
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, "invalid expiry", nil))
		return
	}

	hash := s.engine.PreviewMessageHash(kind, actor, magnitude, uniqueID, nonce, expiry)
	c.JSON(http.StatusOK, gin.H{"hash": hash.Hex()})
}

// requireAdmin rejects administrative calls whose caller identity is missing
// or not on the admin guard.
func (s *Service) requireAdmin(c *gin.Context) {
	caller, err := parseAddress(c.GetHeader(AdminHeader))
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeUnauthorized, "missing or invalid admin identity", nil))
		c.Abort()
		return
	}
	if !s.admins.IsAdmin(caller) {
		s.writeError(c, claimgate.NewClaimError(errCodeUnauthorized, "caller is not an admin", nil))
		c.Abort()
		return
	}
	c.Next()
}

func (s *Service) handleSetSigner(c *gin.Context) {
	var req SetSignerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}
	addr, err := parseAddress(req.Signer)
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(claimgate.ErrCodeInvalidAdminParameter, err.Error(), nil))
		return
	}
	if err := s.cfg.SetAuthorizedSigner(addr); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signer": addr.Hex()})
}

func (s *Service) handleSetReserve(c *gin.Context) {
	var req SetReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}
	addr, err := parseAddress(req.Reserve)
	if err != nil {
		s.writeError(c, claimgate.NewClaimError(claimgate.ErrCodeInvalidAdminParameter, err.Error(), nil))
		return
	}
	if err := s.cfg.SetReserveAddress(addr); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reserve": addr.Hex()})
}

func (s *Service) handleSetLimits(c *gin.Context) {
	var req SetLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}
	maxSingle, ok := new(big.Int).SetString(req.MaxSingleClaim, 10)
	if !ok {
		s.writeError(c, claimgate.NewClaimError(claimgate.ErrCodeInvalidAdminParameter, "invalid maxSingleClaim", nil))
		return
	}
	maxDaily, ok := new(big.Int).SetString(req.MaxDailyPerActor, 10)
	if !ok {
		s.writeError(c, claimgate.NewClaimError(claimgate.ErrCodeInvalidAdminParameter, "invalid maxDailyPerActor", nil))
		return
	}
	if err := s.cfg.SetLimits(maxSingle, maxDaily, req.CooldownSeconds); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"maxSingleClaim":   maxSingle.String(),
		"maxDailyPerActor": maxDaily.String(),
		"cooldownSeconds":  req.CooldownSeconds,
	})
}

func (s *Service) handleSetExpiryWindow(c *gin.Context) {
	var req SetExpiryWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, claimgate.NewClaimError(errCodeInvalidRequest, err.Error(), nil))
		return
	}
	if err := s.cfg.SetExpiryWindow(req.Seconds); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expiryWindowSeconds": req.Seconds})
}

func (s *Service) handlePause(c *gin.Context) {
	s.cfg.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Service) handleUnpause(c *gin.Context) {
	s.cfg.Unpause()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (s *Service) writeError(c *gin.Context, err error) {
	ce, ok := err.(*claimgate.ClaimError)
	if !ok {
		ce = claimgate.NewClaimError("internal_error", err.Error(), nil)
	}
	c.JSON(statusForCode(ce.Code), ErrorResponse{Error: ce})
}
