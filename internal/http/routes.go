package http

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/config"
	"github.com/sujalbistaa/setor7/internal/service"
)

// Deps is everything the router needs.
type Deps struct {
	DB       *gorm.DB
	Services *service.Services
	Verifier *auth.Verifier
	Config   *config.Config
}

// SetupRoutes configures all application routes and middleware.
func SetupRoutes(router *gin.Engine, deps Deps) {
	env := &Env{DB: deps.DB, Svc: deps.Services}
	cfg := deps.Config

	// --- Middleware ---
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*" // Default to allow all for local dev
	}
	var origins []string
	for _, o := range strings.Split(corsOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: corsOrigin != "*",
	}))

	router.GET("/healthz", env.Health)

	// --- API Routes ---
	api := router.Group("/api")
	api.Use(auth.Middleware(deps.Verifier))
	{
		api.GET("/session", env.GetSession)
		api.POST("/session/signout", env.SignOut)
	}

	// Everything below acts on the caller's profile, so make sure it exists.
	member := api.Group("")
	member.Use(EnsureProfileMiddleware(deps.Services.Profiles))
	{
		member.GET("/me", env.GetMe)

		member.GET("/stories", env.ListStories)
		member.POST("/stories", MaxBodyMiddleware(cfg.MaxUploadMB<<20), env.CreateStory)
		member.GET("/stories/:id", env.GetStory)
		member.GET("/stories/:id/investigations", env.ListInvestigations)
		member.POST("/stories/:id/investigations", env.CreateInvestigation)
		member.GET("/stories/:id/comments", env.ListComments)
		member.POST("/stories/:id/comments", env.CreateComment)
		member.POST("/investigations/:id/vote", env.VoteOnInvestigation)
	}

	// Admin rights are checked by the moderation service on every call.
	admin := member.Group("/admin")
	{
		admin.GET("/profiles", env.ListProfiles)
		admin.GET("/logs", env.ListModerationLog)
		admin.POST("/users/:id/ban", env.BanUser)
		admin.POST("/users/:id/unban", env.UnbanUser)
		admin.POST("/stories/:id/delete", env.DeleteStory)
		admin.POST("/promote", env.PromoteToAdmin)
	}

	// --- Uploaded media ---
	// Only the filesystem store is served from here; s3 objects have their own URLs.
	if cfg.Media.Type == "filesystem" && strings.HasPrefix(cfg.Media.BaseURL, "/") {
		router.Static(cfg.Media.BaseURL, cfg.Media.Dir)
	}
}
