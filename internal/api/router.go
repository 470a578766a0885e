package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventface/facecore/internal/api/handlers"
	"github.com/eventface/facecore/internal/api/ws"
	"github.com/eventface/facecore/internal/auth"
	"github.com/eventface/facecore/internal/batch"
	"github.com/eventface/facecore/internal/blobstore"
	"github.com/eventface/facecore/internal/config"
	"github.com/eventface/facecore/internal/identity"
	"github.com/eventface/facecore/internal/livescan"
	"github.com/eventface/facecore/internal/match"
	"github.com/eventface/facecore/internal/pipeline"
	"github.com/eventface/facecore/internal/queue"
)

type RouterConfig struct {
	APIKey    string
	Upload    config.UploadConfig
	Store     *identity.Store
	Blobs     *blobstore.Store
	Producer  *queue.Producer
	Processor *pipeline.PhotoProcessor
	Runner    *batch.Runner
	Matcher   *match.Matcher
	LiveScan  *livescan.Manager
	Hub       *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	r.MaxMultipartMemory = cfg.Upload.MaxUploadBytes

	systemH := handlers.NewSystemHandler(cfg.Store, cfg.Blobs, cfg.Producer, cfg.Matcher)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	v1.GET("/ws", cfg.Hub.HandleWS)

	v1.GET("/system/status", systemH.Status)
	v1.POST("/system/reset-cache", systemH.ResetCache)

	photoH := handlers.NewPhotoHandler(cfg.Blobs, cfg.Processor, cfg.Runner, cfg.Upload)
	v1.POST("/photos/upload", photoH.Upload)
	v1.POST("/photos/process-event", photoH.ProcessEvent)

	scanH := handlers.NewScanHandler(cfg.LiveScan)
	v1.POST("/scan/capture", scanH.Capture)
	v1.POST("/scan/match", scanH.Match)

	searchH := handlers.NewSearchHandler(cfg.Store, cfg.Matcher)
	v1.GET("/search/person/:id/photos", searchH.PersonPhotos)
	v1.POST("/search/similar-faces", searchH.SimilarFaces)

	return r
}
