package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/photolabel/internal/api/handlers"
	"github.com/your-org/photolabel/internal/api/ws"
	"github.com/your-org/photolabel/internal/auth"
)

type RouterConfig struct {
	APIKey    string
	Clusterer handlers.Clusterer
	Jobs      handlers.JobStatusReader
	Embedder  handlers.TextEmbedder
	Images    handlers.ImageSearcher
	Checks    []handlers.Check
	Hub       *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	clusterH := handlers.NewClusterHandler(cfg.Clusterer)
	v1.POST("/clusters", clusterH.Create)

	jobH := handlers.NewJobHandler(cfg.Jobs)
	v1.GET("/jobs/:image_id", jobH.Get)

	searchH := handlers.NewSearchHandler(cfg.Embedder, cfg.Images)
	v1.POST("/images/search", searchH.Search)

	return r
}
