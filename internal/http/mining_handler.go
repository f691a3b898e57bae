package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/ledger-orchestrator/internal/http/httputil"
	"github.com/hxuan190/ledger-orchestrator/internal/orchestrator"
)

// MiningHandler serves the NFT mining and LP staking records.
type MiningHandler struct {
	svc *orchestrator.Service
}

func NewMiningHandler(svc *orchestrator.Service) *MiningHandler {
	return &MiningHandler{svc: svc}
}

func (h *MiningHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/nft/system", h.getSystem)
	pub.GET("/nft/orders/:user", h.listOrders)
	pub.GET("/staking", h.getStakingInstance)
	pub.GET("/staking/users/:authority", h.getStakingUser)
}

func (h *MiningHandler) Root() string {
	return ""
}

func (h *MiningHandler) getSystem(c *gin.Context) {
	sys, err := h.svc.Reader().NftMiningSystem(c.Request.Context())
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	httputil.HandleSuccess(c, sys)
}

func (h *MiningHandler) listOrders(c *gin.Context) {
	user, ok := pathKey(c, "user")
	if !ok {
		return
	}
	orders, err := h.svc.Reader().OrderInfos(c.Request.Context(), user)
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	httputil.HandleSuccess(c, orders)
}

func (h *MiningHandler) getStakingInstance(c *gin.Context) {
	inst, err := h.svc.Reader().StakingInstance(c.Request.Context())
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	httputil.HandleSuccess(c, inst)
}

func (h *MiningHandler) getStakingUser(c *gin.Context) {
	authority, ok := pathKey(c, "authority")
	if !ok {
		return
	}
	user, err := h.svc.Reader().StakingUser(c.Request.Context(), authority)
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	httputil.HandleSuccess(c, user)
}
