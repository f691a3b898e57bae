package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/http/httputil"
	"github.com/hxuan190/ledger-orchestrator/internal/orchestrator"
)

type CrowdfundingHandler struct {
	svc *orchestrator.Service
	now func() time.Time
}

func NewCrowdfundingHandler(svc *orchestrator.Service) *CrowdfundingHandler {
	return &CrowdfundingHandler{svc: svc, now: time.Now}
}

func (h *CrowdfundingHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.getInfo)
	pub.GET("/phases", h.listPhases)
	pub.GET("/purchases/:user", h.listPurchases)
}

func (h *CrowdfundingHandler) Root() string {
	return "/crowdfunding"
}

func (h *CrowdfundingHandler) getInfo(c *gin.Context) {
	info, err := h.svc.Reader().CrowdfundingInfo(c.Request.Context())
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	httputil.HandleSuccess(c, info)
}

func (h *CrowdfundingHandler) listPhases(c *gin.Context) {
	phases, err := h.svc.Reader().SalePhases(c.Request.Context())
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	httputil.HandleSuccess(c, phases)
}

// PurchaseView is a purchase record with what it can release right now.
type PurchaseView struct {
	domain.Keyed[domain.UserPurchase]
	Claimable uint64 `json:"claimable"`
}

func (h *CrowdfundingHandler) listPurchases(c *gin.Context) {
	user, ok := pathKey(c, "user")
	if !ok {
		return
	}
	purchases, err := h.svc.Reader().UserPurchases(c.Request.Context(), user)
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	now := h.now().Unix()
	views := make([]PurchaseView, 0, len(purchases))
	for _, p := range purchases {
		views = append(views, PurchaseView{Keyed: p, Claimable: p.Record.Claimable(now)})
	}
	httputil.HandleSuccess(c, views)
}
