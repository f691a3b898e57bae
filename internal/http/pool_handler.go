package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/http/httputil"
	"github.com/hxuan190/ledger-orchestrator/internal/orchestrator"
)

type PoolHandler struct {
	svc *orchestrator.Service
}

func NewPoolHandler(svc *orchestrator.Service) *PoolHandler {
	return &PoolHandler{svc: svc}
}

func (h *PoolHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/:address", h.getPool)
}

func (h *PoolHandler) Root() string {
	return "/pools"
}

// PoolResponse is the swap route descriptor of a pool.
type PoolResponse struct {
	domain.PoolRouteDescriptor
	// Pinned pools are answered from memory
	Pinned bool `json:"pinned"`
}

func (h *PoolHandler) getPool(c *gin.Context) {
	address := c.Param("address")
	_, pinned := h.svc.Resolver().Pinned(address)

	desc, err := h.svc.Resolver().ResolveString(c.Request.Context(), address)
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	httputil.HandleSuccess(c, PoolResponse{PoolRouteDescriptor: desc, Pinned: pinned})
}
