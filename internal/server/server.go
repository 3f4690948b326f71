package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/config"
	statusdomain "github.com/qazaqsoft/kaspisync/internal/statusmap/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PipelineLister exposes the CRM pipeline catalog to the admin API.
type PipelineLister interface {
	ListPipelines(ctx context.Context) ([]amocrm.Pipeline, error)
}

// TokenExchanger completes the OAuth authorization-code handoff.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) error
}

var Module = fx.Module("http.server",
	fx.Provide(
		registerGin,
		func(c *amocrm.Client) PipelineLister { return c },
		func(m *amocrm.TokenManager) TokenExchanger { return m },
	),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	statuses  statusdomain.StatusMap
	pipelines PipelineLister
	tokens    TokenExchanger
	log       *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Statuses  statusdomain.StatusMap
	Pipelines PipelineLister
	Tokens    TokenExchanger
	Log       *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		statuses:  p.Statuses,
		pipelines: p.Pipelines,
		tokens:    p.Tokens,
		log:       p.Log.Named("server"),
	}

	svc.registerAPIRoutes()
	svc.registerOAuthRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(s.SecretRequired())

	api.GET("/status-mappings", s.ListStatusMappings)
	api.POST("/status-mappings", s.CreateStatusMapping)
	api.PATCH("/status-mappings/:id", s.UpdateStatusMapping)
	api.DELETE("/status-mappings/:id", s.DeleteStatusMapping)
	api.POST("/status-mappings/:id/activate", s.ActivateStatusMapping)
	api.POST("/status-mappings/:id/deactivate", s.DeactivateStatusMapping)

	api.GET("/pipelines", s.ListPipelines)
}

func (s *Server) registerOAuthRoutes() {
	s.engine.GET("/oauth/callback", s.OAuthCallback)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
