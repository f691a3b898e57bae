package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/ledger-orchestrator/internal/derive"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/http/httputil"
	"github.com/hxuan190/ledger-orchestrator/internal/ledger"
	"github.com/hxuan190/ledger-orchestrator/internal/orchestrator"
)

type VestingHandler struct {
	svc *orchestrator.Service
	now func() time.Time
}

func NewVestingHandler(svc *orchestrator.Service) *VestingHandler {
	return &VestingHandler{svc: svc, now: time.Now}
}

func (h *VestingHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.listSchedules)
	pub.GET("/:address", h.getSchedule)
	pub.GET("/:address/transfers", h.listTransfers)
}

func (h *VestingHandler) Root() string {
	return "/vesting"
}

func (h *VestingHandler) listSchedules(c *gin.Context) {
	creator, ok := queryKey(c, "creator")
	if !ok {
		return
	}
	beneficiary, ok := queryKey(c, "beneficiary")
	if !ok {
		return
	}
	schedules, err := h.svc.Reader().VestingSchedules(c.Request.Context(), ledger.VestingFilter{
		Creator:     creator,
		Beneficiary: beneficiary,
	})
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	now := h.now().Unix()
	views := make([]domain.VestingView, 0, len(schedules))
	for _, s := range schedules {
		views = append(views, domain.NewVestingView(s.Address, s.Record, now))
	}
	httputil.HandleSuccess(c, views)
}

func (h *VestingHandler) getSchedule(c *gin.Context) {
	address, ok := pathKey(c, "address")
	if !ok {
		return
	}
	s, err := h.svc.Reader().VestingSchedule(c.Request.Context(), address)
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	httputil.HandleSuccess(c, domain.NewVestingView(s.Address, s.Record, h.now().Unix()))
}

// listTransfers reports the releases from the schedule's vault to the
// beneficiary's token account, newest first.
func (h *VestingHandler) listTransfers(c *gin.Context) {
	address, ok := pathKey(c, "address")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	s, err := h.svc.Reader().VestingSchedule(ctx, address)
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	vault, err := derive.AssociatedTokenAddress(s.Address, s.Record.Mint)
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	to, err := derive.AssociatedTokenAddress(s.Record.Beneficiary, s.Record.Mint)
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}

	transfers, err := h.svc.Reader().TransferHistory(ctx, vault, to, queryLimit(c, ledger.DefaultHistoryLimit, 1000))
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	httputil.HandleSuccess(c, transfers)
}
