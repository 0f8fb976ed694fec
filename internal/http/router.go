package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/termgraph-backend/internal/http/handlers"
	httpMW "github.com/yungbote/termgraph-backend/internal/http/middleware"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	ServiceName string

	HealthHandler  *httpH.HealthHandler
	BranchHandler  *httpH.BranchHandler
	ConceptHandler *httpH.ConceptHandler
	MemberHandler  *httpH.MemberHandler
	ECLHandler     *httpH.ECLHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	// Branch paths arrive percent-encoded in the :branch segment.
	r.UseRawPath = true
	r.UnescapePathValues = false

	r.Use(gin.Recovery())
	r.Use(httpMW.Tracing(cfg.ServiceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.BranchHandler != nil {
			api.POST("/branches", cfg.BranchHandler.Create)
			api.GET("/branches/:branch", cfg.BranchHandler.Get)
			api.GET("/branches/:branch/children", cfg.BranchHandler.Children)
			api.PUT("/branches/:branch/metadata", cfg.BranchHandler.UpdateMetadata)
			api.POST("/branches/:branch/rebase", cfg.BranchHandler.Rebase)
			api.POST("/branches/:branch/promote", cfg.BranchHandler.Promote)
		}

		if cfg.ECLHandler != nil {
			api.GET("/branches/:branch/concepts", cfg.ECLHandler.Execute)
			api.POST("/branches/:branch/semantic-index/rebuild", cfg.ECLHandler.RebuildIndex)
		}

		if cfg.ConceptHandler != nil {
			api.GET("/branches/:branch/concepts/:conceptId", cfg.ConceptHandler.Get)
			api.POST("/branches/:branch/concepts", cfg.ConceptHandler.Create)
			api.POST("/branches/:branch/concepts/bulk", cfg.ConceptHandler.Bulk)
			api.PUT("/branches/:branch/concepts/:conceptId", cfg.ConceptHandler.Update)
			api.DELETE("/branches/:branch/concepts/:conceptId", cfg.ConceptHandler.Delete)
		}

		if cfg.MemberHandler != nil {
			api.GET("/branches/:branch/members", cfg.MemberHandler.List)
			api.GET("/branches/:branch/members/:memberId", cfg.MemberHandler.Get)
			api.POST("/branches/:branch/members", cfg.MemberHandler.Create)
			api.DELETE("/branches/:branch/members/:memberId", cfg.MemberHandler.Delete)
		}
	}

	return r
}
