package http

import (
	"context"
	"errors"
	"fmt"
	gohttp "net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/ledger-orchestrator/internal/config"
	"github.com/hxuan190/ledger-orchestrator/internal/http/httputil"
	"github.com/hxuan190/ledger-orchestrator/internal/http/middlewares"
	"github.com/hxuan190/ledger-orchestrator/internal/orchestrator"
)

const (
	API_VERSION  = "v1"
	HTTP_SERVICE = "http-service"
)

type HTTPService struct {
	container.BaseDIInstance

	orchestratorSvc *orchestrator.Service
	rateLimiter     *middlewares.RateLimiter
	server          *gohttp.Server
	conf            *config.GeneralConfig

	handlers []httputil.RouteHandler
}

func (svc *HTTPService) ID() string {
	return HTTP_SERVICE
}

// NewRouter builds the API routes over an orchestrator.
func NewRouter(conf *config.GeneralConfig, orch *orchestrator.Service) *gin.Engine {
	svc := &HTTPService{conf: conf}
	svc.wire(orch)
	return svc.router()
}

func (svc *HTTPService) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsConf))

	r.Use(middlewares.MetricsMiddleware())
	r.Use(svc.rateLimiter.RateLimitMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(gohttp.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if svc.conf.OperatorToken == "" {
		log.Warn().Msg("[HTTP] OPERATOR_TOKEN not set, operation routes are open")
	}
	auth := middlewares.OperatorAuth(svc.conf.OperatorToken)

	api := r.Group("api")
	pub := api.Group(API_VERSION)
	priv := api.Group(API_VERSION, auth)

	admin := api.Group(fmt.Sprintf("%s/admin", API_VERSION), auth)

	svc.setupHandlers(pub, priv, admin)
	return r
}

func (svc *HTTPService) Start() error {
	svc.server = &gohttp.Server{
		Addr:              svc.conf.HTTPHost + ":" + svc.conf.HTTPPort,
		Handler:           svc.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("host", svc.conf.HTTPHost).Str("port", svc.conf.HTTPPort).Msg("[HTTP] server started")

	if err := svc.server.ListenAndServe(); err != nil && err != gohttp.ErrServerClosed {
		return err
	}

	return nil
}

func (svc *HTTPService) Configure(c container.IContainer) error {
	svc.conf = c.GetConfig(config.GENERAL_CONFIG_KEY).(*config.GeneralConfig)
	if svc.conf == nil {
		return errors.New("invalid server config")
	}
	if svc.conf.Env == config.ProdEnv {
		gin.SetMode(gin.ReleaseMode)
	}

	svc.wire(c.Instance(orchestrator.ORCHESTRATOR_SERVICE).(*orchestrator.Service))
	return nil
}

func (svc *HTTPService) wire(orch *orchestrator.Service) {
	svc.orchestratorSvc = orch
	svc.rateLimiter = middlewares.NewRateLimiter(svc.conf.RateLimit, svc.conf.RateBurst)

	svc.handlers = []httputil.RouteHandler{
		NewPoolHandler(orch),
		NewCrowdfundingHandler(orch),
		NewMiningHandler(orch),
		NewVestingHandler(orch),
		NewOperationHandler(orch),
		NewLookupTableHandler(orch),
	}
}

func (svc *HTTPService) Stop() error {
	if svc.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("[HTTP] failed to stop server")
		return err
	}
	log.Info().Msg("[HTTP] server stopped gracefully")
	return nil
}

func (svc *HTTPService) setupHandlers(
	rootPub *gin.RouterGroup,
	rootPriv *gin.RouterGroup,
	rootAdmin *gin.RouterGroup,
) {
	for _, h := range svc.handlers {
		pub := rootPub.Group(h.Root())
		priv := rootPriv.Group(h.Root())
		admin := rootAdmin.Group(h.Root())
		h.SetRoutes(pub, priv, admin)
	}
}
