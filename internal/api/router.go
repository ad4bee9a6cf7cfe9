package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/idgate/internal/api/handlers"
	"github.com/your-org/idgate/internal/api/ws"
	"github.com/your-org/idgate/internal/auth"
	"github.com/your-org/idgate/internal/compliance"
	"github.com/your-org/idgate/internal/models"
	"github.com/your-org/idgate/internal/queue"
	"github.com/your-org/idgate/internal/storage"
)

type RouterConfig struct {
	APIKey     string
	DB         *storage.PostgresStore
	MinIO      *storage.MinIOStore
	Producer   *queue.Producer
	Hub        *ws.Hub
	Compliance *compliance.Engine
	Settings   *handlers.Settings
	// FallbackScanner is served when no role configures a kiosk.
	FallbackScanner models.ScannerConfig
	EmbeddingDim    int
	// EmbedFn extracts a face embedding from a preprocessed crop (from the
	// ONNX model). Nil when no model is configured.
	EmbedFn func(crop []float32) ([]float32, error)
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))
	v1.Use(auth.RequesterMiddleware())

	// WebSocket scan-activity feed
	v1.GET("/ws", cfg.Hub.HandleWS)

	guard := func(key string) gin.HandlerFunc { return auth.RequirePermission(cfg.DB, key) }

	// Attribute definitions
	attrH := handlers.NewAttributeHandler(cfg.DB)
	v1.GET("/attributes", guard(models.PermFieldsRead), attrH.List)
	v1.GET("/attributes/:id", guard(models.PermFieldsRead), attrH.Get)
	v1.POST("/attributes", guard(models.PermFieldsCreate), attrH.Create)
	v1.PATCH("/attributes/:id", guard(models.PermFieldsUpdate), attrH.Update)
	v1.DELETE("/attributes/:id", guard(models.PermFieldsDelete), attrH.Delete)

	// Persons
	personH := handlers.NewPersonHandler(cfg.DB, cfg.MinIO, cfg.Compliance, cfg.EmbeddingDim)
	personH.EmbedFn = cfg.EmbedFn
	v1.POST("/persons", guard(models.PermPersonsCreate), personH.Create)
	v1.GET("/persons", guard(models.PermPersonsRead), personH.List)
	v1.GET("/persons/:id", guard(models.PermPersonsRead), personH.Get)
	v1.PATCH("/persons/:id/values", guard(models.PermPersonsUpdate), personH.UpdateValues)
	v1.DELETE("/persons/:id", guard(models.PermPersonsDelete), personH.Delete)
	v1.POST("/persons/:id/photo", guard(models.PermPersonsUpdate), personH.UploadPhoto)
	v1.GET("/persons/:id/photo", guard(models.PermPersonsRead), personH.Photo)
	v1.POST("/persons/:id/representations", guard(models.PermPersonsUpdate), personH.ReplaceRepresentations)
	v1.GET("/persons/:id/representations", guard(models.PermPersonsRead), personH.ListRepresentations)
	v1.GET("/persons/:id/compliance", guard(models.PermPersonsRead), personH.Compliance)

	// Roles & users
	roleH := handlers.NewRoleHandler(cfg.DB)
	v1.POST("/roles", guard(models.PermRolesCreate), roleH.Create)
	v1.GET("/roles", guard(models.PermRolesRead), roleH.List)
	v1.GET("/roles/:id", guard(models.PermRolesRead), roleH.Get)

	userH := handlers.NewUserHandler(cfg.DB)
	v1.POST("/users", guard(models.PermUsersCreate), userH.Create)
	v1.GET("/users", guard(models.PermUsersRead), userH.List)
	v1.GET("/users/:id", guard(models.PermUsersRead), userH.Get)
	v1.GET("/users/:id/permissions", guard(models.PermUsersRead), userH.EffectivePermissions)

	// Scanning
	scanH := handlers.NewScanHandler(cfg.DB, cfg.Producer, cfg.Compliance, cfg.Settings, cfg.FallbackScanner, cfg.EmbeddingDim)
	scanH.EmbedFn = cfg.EmbedFn
	v1.POST("/scan", guard(models.PermRecognitionFace), scanH.Scan)
	v1.POST("/scan/text", guard(models.PermRecognitionText), scanH.TextSearch)
	v1.GET("/scan/config", auth.RequireAnyPermission(cfg.DB, models.PermRecognitionFace, models.PermRecognitionText), scanH.Config)
	v1.GET("/scan/settings", guard(models.PermSettingsRead), scanH.GetSettings)
	v1.PUT("/scan/settings", guard(models.PermSettingsUpdate), scanH.UpdateSettings)
	v1.GET("/scan/events", guard(models.PermAuditRead), scanH.Events)

	return r
}
