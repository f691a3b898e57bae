package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/http/httputil"
	"github.com/hxuan190/ledger-orchestrator/internal/orchestrator"
)

// maxOperationBody bounds the JSON parameters of one operation.
const maxOperationBody = 64 << 10

type OperationHandler struct {
	svc *orchestrator.Service
}

func NewOperationHandler(svc *orchestrator.Service) *OperationHandler {
	return &OperationHandler{svc: svc}
}

func (h *OperationHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	private.POST("/:kind", h.run)
}

func (h *OperationHandler) Root() string {
	return "/operations"
}

// run assembles the operation named by the path for the configured wallet.
// With ?dryRun=true it is simulated instead of submitted.
func (h *OperationHandler) run(c *gin.Context) {
	kind := domain.OperationKind(c.Param("kind"))
	dryRun := c.Query("dryRun") == "true"

	if c.Request.ContentLength > maxOperationBody {
		httputil.HandleBadRequest(c, "request body too large")
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		httputil.HandleBadRequest(c, "invalid request body")
		return
	}

	out, err := h.svc.Execute(c.Request.Context(), kind, body, dryRun)
	if err != nil {
		log.Debug().Err(err).Str("op", string(kind)).Msg("[OperationHandler] operation failed")
		if out == nil {
			httputil.HandleError(c, err, nil)
			return
		}
		httputil.HandleError(c, err, out)
		return
	}
	httputil.HandleSuccess(c, out)
}

type LookupTableHandler struct {
	svc *orchestrator.Service
}

func NewLookupTableHandler(svc *orchestrator.Service) *LookupTableHandler {
	return &LookupTableHandler{svc: svc}
}

func (h *LookupTableHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	admin.DELETE("", h.invalidate)
}

func (h *LookupTableHandler) Root() string {
	return "/lookup-table"
}

func (h *LookupTableHandler) invalidate(c *gin.Context) {
	signer, err := h.svc.InvalidateTable()
	if err != nil {
		httputil.HandleError(c, err, nil)
		return
	}
	httputil.HandleSuccess(c, gin.H{"signer": signer.String(), "invalidated": true})
}
