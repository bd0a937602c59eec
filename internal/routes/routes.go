package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/cache"
	"github.com/example/sitesnap/internal/config"
	"github.com/example/sitesnap/internal/handlers"
	"github.com/example/sitesnap/internal/logger"
	"github.com/example/sitesnap/internal/metrics"
	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/policy"
	"github.com/example/sitesnap/internal/services"
)

// Deps carries everything the routes need. Cache is nil when Redis is not
// configured.
type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Identity *services.IdentityService
	Roles    *services.RoleService
	Media    services.MediaHost
	Cleanup  *services.CleanupRunner
	Cache    *cache.Client
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, d Deps) {
	authn := middleware.NewAuthenticator(d.Identity, d.Logger)
	optional := authn.Optional()
	required := authn.Required()
	adminOnly := middleware.RequireRole(policy.RoleAdmin)

	var store middleware.RateLimitStore
	var pinger handlers.Pinger
	if d.Cache != nil {
		store = d.Cache
		pinger = d.Cache
	}
	rl := d.Config.RateLimit
	limit := func(name string) fiber.Handler {
		return middleware.AuthRateLimit(
			middleware.NewRateLimitPolicy(name, rl.Window, rl.IPLimit, rl.EmailLimit),
			store, d.Logger, d.Metrics)
	}

	authHandler := handlers.NewAuthHandler(d.Identity)
	productHandler := handlers.NewProductHandler(d.DB, d.Media, d.Cleanup)
	catalogHandler := handlers.NewCatalogHandler(d.DB)
	marketingHandler := handlers.NewMarketingHandler(d.DB, d.Media, d.Cleanup)
	businessHandler := handlers.NewBusinessHandler(d.DB)
	siteHandler := handlers.NewSiteHandler(d.DB)
	analyticsHandler := handlers.NewAnalyticsHandler(d.DB)
	sellerHandler := handlers.NewSellerHandler(d.DB, d.Roles)
	adminHandler := handlers.NewAdminHandler(d.DB, d.Roles)
	uploadHandler := handlers.NewUploadHandler(d.DB, d.Media, d.Cleanup)
	healthHandler := handlers.NewHealthHandler(d.DB, pinger)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})))

	api := app.Group("/api")
	api.Get("/health", healthHandler.Check)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", limit("register"), authHandler.Register)
	auth.Post("/verify-email-otp", limit("verify"), authHandler.VerifyEmailOTP)
	auth.Post("/login", limit("login"), authHandler.Login)
	auth.Post("/phone/send-otp", limit("otp"), authHandler.SendPhoneOTP)
	auth.Post("/phone/verify-otp", limit("verify"), authHandler.VerifyPhoneOTP)
	auth.Post("/google", limit("login"), authHandler.Google)
	auth.Post("/resend-otp", limit("otp"), authHandler.ResendOTP)
	auth.Get("/me", required, authHandler.Me)

	// Catalog routes
	products := api.Group("/products")
	products.Get("/", optional, productHandler.ListProducts)
	products.Get("/:id", optional, productHandler.GetProduct)
	products.Put("/:id/redirect", productHandler.IncrementRedirect)
	products.Post("/", required, productHandler.CreateProduct)
	products.Put("/:id", required, productHandler.UpdateProduct)
	products.Delete("/:id", required, productHandler.DeleteProduct)

	categories := api.Group("/categories")
	categories.Get("/", optional, catalogHandler.ListCategories)
	categories.Get("/:id", optional, catalogHandler.GetCategory)
	categories.Post("/", required, catalogHandler.CreateCategory)
	categories.Put("/:id", required, catalogHandler.UpdateCategory)
	categories.Delete("/:id", required, catalogHandler.DeleteCategory)

	attributes := api.Group("/attributes")
	attributes.Get("/", optional, catalogHandler.ListAttributes)
	attributes.Get("/:id", optional, catalogHandler.GetAttribute)
	attributes.Post("/", required, catalogHandler.CreateAttribute)
	attributes.Put("/:id", required, catalogHandler.UpdateAttribute)
	attributes.Delete("/:id", required, catalogHandler.DeleteAttribute)

	// Marketing routes
	heroSlides := api.Group("/hero-slides")
	heroSlides.Get("/", optional, marketingHandler.ListHeroSlides)
	heroSlides.Get("/:id", optional, marketingHandler.GetHeroSlide)
	heroSlides.Post("/", required, marketingHandler.CreateHeroSlide)
	heroSlides.Put("/:id", required, marketingHandler.UpdateHeroSlide)
	heroSlides.Delete("/:id", required, marketingHandler.DeleteHeroSlide)

	stories := api.Group("/stories")
	stories.Get("/", optional, marketingHandler.ListStories)
	stories.Get("/:id", optional, marketingHandler.GetStory)
	stories.Post("/", required, marketingHandler.CreateStory)
	stories.Put("/:id/story-cards", required, marketingHandler.AddStoryCards)
	stories.Delete("/:id/story-cards/:storyCardId", required, marketingHandler.RemoveStoryCard)
	stories.Put("/:id", required, marketingHandler.UpdateStory)
	stories.Delete("/:id", required, marketingHandler.DeleteStory)

	storyCards := api.Group("/story-cards", required)
	storyCards.Get("/", marketingHandler.ListStoryCards)
	storyCards.Get("/:id", marketingHandler.GetStoryCard)
	storyCards.Post("/", marketingHandler.CreateStoryCard)
	storyCards.Put("/:id", marketingHandler.UpdateStoryCard)
	storyCards.Delete("/:id", marketingHandler.DeleteStoryCard)

	// Storefront routes
	businesses := api.Group("/businesses", required)
	businesses.Get("/", businessHandler.ListBusinesses)
	businesses.Get("/seller/:sellerId", businessHandler.ListBySeller)
	businesses.Get("/:id", businessHandler.GetBusiness)
	businesses.Post("/", businessHandler.CreateBusiness)
	businesses.Put("/:id", businessHandler.UpdateBusiness)
	businesses.Delete("/:id", businessHandler.DeleteBusiness)

	sites := api.Group("/site-details", required)
	sites.Get("/", siteHandler.ListSites)
	sites.Get("/:id", siteHandler.GetSite)
	sites.Post("/", siteHandler.CreateSite)
	sites.Put("/:id/hero-slides", siteHandler.AddHeroSlides)
	sites.Delete("/:id/hero-slides/:heroSlideId", siteHandler.RemoveHeroSlide)
	sites.Put("/:id", siteHandler.UpdateSite)
	sites.Delete("/:id", siteHandler.DeleteSite)

	analytics := api.Group("/analytics")
	analytics.Put("/:id/views", analyticsHandler.IncrementViews)
	analytics.Put("/:id/clicks", analyticsHandler.IncrementClicks)
	analytics.Get("/", required, analyticsHandler.ListAnalytics)
	analytics.Get("/business/:businessId", required, analyticsHandler.ListByBusiness)
	analytics.Get("/:id", required, analyticsHandler.GetAnalytics)
	analytics.Post("/", required, analyticsHandler.CreateAnalytics)
	analytics.Put("/:id", required, analyticsHandler.UpdateAnalytics)
	analytics.Delete("/:id", required, analyticsHandler.DeleteAnalytics)

	// Seller routes
	sellers := api.Group("/sellers", required)
	sellers.Post("/", sellerHandler.CreateSeller)
	sellers.Get("/", adminOnly, sellerHandler.ListSellers)
	sellers.Get("/:id", sellerHandler.GetSeller)
	sellers.Put("/:id", sellerHandler.UpdateSeller)
	sellers.Delete("/:id", sellerHandler.DeleteSeller)

	// Upload routes
	uploads := api.Group("/uploads", required)
	uploads.Post("/", uploadHandler.Create)
	uploads.Get("/", uploadHandler.List)
	uploads.Delete("/:id", uploadHandler.Delete)

	// Admin routes
	admin := api.Group("/admin", required, adminOnly)
	admin.Get("/users", adminHandler.ListUsers)
	admin.Get("/users/:id", adminHandler.GetUser)
	admin.Put("/users/:id/role", adminHandler.UpdateUserRole)
	admin.Delete("/users/:id", adminHandler.DeleteUser)
}
